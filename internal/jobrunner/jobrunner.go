// Package jobrunner runs opsdec's periodic maintenance sweep: evicting
// expired image cache entries and checkpointing the database's WAL.
package jobrunner

import (
	"context"
	"time"

	"github.com/mondominator/opsdec/internal/imagecache"
	"github.com/mondominator/opsdec/internal/logging"
	"github.com/mondominator/opsdec/internal/store"
)

// Runner is a suture.Service that ticks on a fixed interval, running one
// maintenance sweep per tick.
type Runner struct {
	store        *store.Store
	cache        *imagecache.Cache
	interval     time.Duration
	cacheMaxAge  time.Duration
	cacheMaxSize int64
}

// New builds a Runner. cache may be nil, in which case the sweep only
// checkpoints the database. cacheMaxAge and cacheMaxSize are passed through
// to Cache.Evict on each sweep.
func New(st *store.Store, cache *imagecache.Cache, interval, cacheMaxAge time.Duration, cacheMaxSize int64) *Runner {
	return &Runner{store: st, cache: cache, interval: interval, cacheMaxAge: cacheMaxAge, cacheMaxSize: cacheMaxSize}
}

// String implements fmt.Stringer so suture identifies this service in logs.
func (r *Runner) String() string { return "job-runner" }

// Serve implements suture.Service: sweeps immediately, then every interval
// until ctx is canceled.
func (r *Runner) Serve(ctx context.Context) error {
	interval := r.interval
	if interval <= 0 {
		interval = time.Hour
	}

	r.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	start := time.Now()

	if r.cache != nil {
		removedByAge, removedByLRU, err := r.cache.Evict(ctx, r.cacheMaxAge, r.cacheMaxSize)
		if err != nil {
			logging.Error().Err(err).Msg("job runner: image cache eviction failed")
		} else if removedByAge > 0 || removedByLRU > 0 {
			logging.Info().
				Int("removed_by_age", removedByAge).
				Int("removed_by_lru", removedByLRU).
				Msg("job runner: image cache evicted entries")
		}
	}

	if err := r.store.Checkpoint(ctx); err != nil {
		logging.Error().Err(err).Msg("job runner: database checkpoint failed")
	}

	logging.Debug().Dur("duration", time.Since(start)).Msg("job runner sweep complete")
}
