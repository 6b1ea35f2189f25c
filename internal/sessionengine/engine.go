// Package sessionengine is opsdec's reconciliation loop: on a fixed tick it
// polls every enabled Server's Adapter, reconciles the returned snapshot
// against the persisted sessions table, drives the per-session lifecycle
// state machine, and writes history records on termination.
package sessionengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mondominator/opsdec/internal/adapter"
	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/cryptokit"
	"github.com/mondominator/opsdec/internal/logging"
	"github.com/mondominator/opsdec/internal/metrics"
	"github.com/mondominator/opsdec/internal/models"
	"github.com/mondominator/opsdec/internal/store"
)

// Broadcaster is the subset of pushhub.Hub the engine depends on. Defined
// here rather than imported so sessionengine and pushhub have no import
// cycle; cmd/server wires the concrete *pushhub.Hub in.
type Broadcaster interface {
	Broadcast(sessions []*models.Session)
}

// Engine runs the poll-reconcile-record loop as a suture.Service.
type Engine struct {
	store      *store.Store
	registry   *adapter.Registry
	encryptor  *cryptokit.CredentialEncryptor
	broadcast  Broadcaster
	cfg        config.SessionEngineConfig
	historyCfg config.HistoryConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]adapter.UpstreamSession]
}

// New builds an Engine. broadcast may be nil, in which case live-session
// snapshots are reconciled and persisted but never pushed.
func New(st *store.Store, registry *adapter.Registry, encryptor *cryptokit.CredentialEncryptor, broadcast Broadcaster, cfg config.SessionEngineConfig, historyCfg config.HistoryConfig) *Engine {
	return &Engine{
		store:      st,
		registry:   registry,
		encryptor:  encryptor,
		broadcast:  broadcast,
		cfg:        cfg,
		historyCfg: historyCfg,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[[]adapter.UpstreamSession]),
	}
}

// String implements fmt.Stringer so suture identifies this service in logs.
func (e *Engine) String() string { return "session-engine" }

// Serve implements suture.Service: ticks every cfg.PollInterval until ctx is
// canceled, running one reconciliation cycle per tick.
func (e *Engine) Serve(ctx context.Context) error {
	interval := e.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	e.runCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.ReconcileCycleDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	servers, err := e.store.ListServers(ctx)
	if err != nil {
		outcome = "error"
		logging.Error().Err(err).Msg("list servers for reconciliation failed")
		return
	}

	snapshots := e.fetchAll(ctx, servers)

	err = e.store.ReconcileCycle(ctx, func(tx *store.Store) error {
		return e.reconcile(ctx, tx, servers, snapshots)
	})
	if err != nil {
		outcome = "error"
		logging.Error().Err(err).Msg("reconciliation cycle failed")
		return
	}

	active, err := e.store.ListActiveSessions(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("list active sessions after reconciliation failed")
		return
	}
	metrics.SessionsActive.Set(float64(len(active)))
	if e.broadcast != nil {
		e.broadcast.Broadcast(active)
	}
}

// fetchAll polls every enabled server's Adapter concurrently, bounded by
// MaxConcurrentPolls, through that server's own circuit breaker. A
// per-server failure (timeout, error, open breaker) is logged and recorded
// as "no new information" rather than aborting the cycle.
func (e *Engine) fetchAll(ctx context.Context, servers []*models.Server) map[string][]adapter.UpstreamSession {
	out := make(map[string][]adapter.UpstreamSession)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.MaxConcurrentPolls
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for _, srv := range servers {
		if !srv.Enabled {
			continue
		}
		srv := srv
		g.Go(func() error {
			sessions, err := e.fetchOne(gctx, srv)
			if err != nil {
				logging.Warn().Err(err).Str("server_id", srv.ID).Str("kind", string(srv.Kind)).Msg("adapter fetch failed, skipping this cycle")
				metrics.AdapterFetchErrors.WithLabelValues(srv.ID).Inc()
				return nil
			}
			mu.Lock()
			out[srv.ID] = sessions
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // fetchOne never returns a non-nil error; failures are logged and skipped

	return out
}

func (e *Engine) fetchOne(ctx context.Context, srv *models.Server) ([]adapter.UpstreamSession, error) {
	a, ok := e.registry.For(srv.Kind)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for server kind %q", srv.Kind)
	}

	credential, err := e.encryptor.Decrypt(srv.EncryptedCredential)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential for server %s: %w", srv.ID, err)
	}

	timeout := e.cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	sessions, err := e.breakerFor(srv.ID).Execute(func() ([]adapter.UpstreamSession, error) {
		return a.Fetch(fetchCtx, srv, credential)
	})
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.AdapterFetchDuration.WithLabelValues(string(srv.Kind), outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (e *Engine) breakerFor(serverID string) *gobreaker.CircuitBreaker[[]adapter.UpstreamSession] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[serverID]; ok {
		return cb
	}

	maxRequests := e.cfg.BreakerMaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	interval := e.cfg.BreakerInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := e.cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[[]adapter.UpstreamSession](gobreaker.Settings{
		Name:        serverID,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && counts.TotalFailures > counts.Requests/2
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logging.Info().Str("server_id", name).Str("from", from.String()).Str("to", to.String()).Msg("adapter circuit breaker state change")
		},
	})
	e.breakers[serverID] = cb
	return cb
}

// BreakerStates reports the current circuit breaker state per server ID
// that has been polled at least once, for the server health endpoint.
func (e *Engine) BreakerStates() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]string, len(e.breakers))
	for id, cb := range e.breakers {
		out[id] = cb.State().String()
	}
	return out
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
