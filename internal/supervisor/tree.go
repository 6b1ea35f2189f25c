// Package supervisor builds opsdec's suture supervisor tree: a root
// supervisor holding two child supervisors, one for the realtime pipeline
// (push hub, session engine) and one for background maintenance (the job
// runner). A crash confined to maintenance work never takes the realtime
// path down with it, and vice versa.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/mondominator/opsdec/internal/logging"
)

// Config holds supervisor tree tuning parameters.
type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultConfig returns suture's own recommended defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is opsdec's top-level suture supervisor.
type Tree struct {
	root        *suture.Supervisor
	realtime    *suture.Supervisor
	maintenance *suture.Supervisor
}

// New builds the tree. Child supervisors inherit the root's event hook.
func New(cfg Config) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	eventHook := (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	root := suture.New("opsdec", rootSpec)
	realtime := suture.New("realtime", childSpec)
	maintenance := suture.New("maintenance", childSpec)

	root.Add(realtime)
	root.Add(maintenance)

	return &Tree{root: root, realtime: realtime, maintenance: maintenance}
}

// AddRealtime adds a service to the push-hub/session-engine supervisor.
func (t *Tree) AddRealtime(svc suture.Service) suture.ServiceToken {
	return t.realtime.Add(svc)
}

// AddMaintenance adds a service to the background-job supervisor.
func (t *Tree) AddMaintenance(svc suture.Service) suture.ServiceToken {
	return t.maintenance.Add(svc)
}

// ServeBackground starts the tree in a background goroutine, returning a
// channel that receives the terminal error (or nil) when it stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport reports services that did not stop within the
// configured shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
