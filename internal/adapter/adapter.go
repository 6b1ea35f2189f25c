// Package adapter normalizes heterogeneous upstream media server session
// APIs (Plex, Emby, Jellyfin, Audiobookshelf) into the shared
// UpstreamSession shape SessionEngine reconciles against the Store.
package adapter

import (
	"context"

	"github.com/mondominator/opsdec/internal/models"
)

// UpstreamSession is one playback session as reported by an upstream
// server, before it has been assigned an internal Session ID.
type UpstreamSession struct {
	SessionKey         string
	UserID             string
	Media              models.MediaDescriptor
	Playing            bool // false means paused
	ProgressPercent    float64
	CurrentTimeSeconds float64
	StartedAt          int64
	IPAddress          string
}

// Adapter fetches the current set of active sessions from one upstream
// server kind. Implementations must treat ctx's deadline as authoritative:
// SessionEngine bounds every fetch with SessionEngineConfig.FetchTimeout.
type Adapter interface {
	Kind() models.ServerKind
	Fetch(ctx context.Context, server *models.Server, credential string) ([]UpstreamSession, error)
}

// Registry resolves a ServerKind to its Adapter.
type Registry struct {
	adapters map[models.ServerKind]Adapter
}

// NewRegistry builds a Registry from the given adapters, keyed by their
// own reported Kind().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.ServerKind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// For returns the Adapter registered for kind, or ok=false if none is.
func (r *Registry) For(kind models.ServerKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}
