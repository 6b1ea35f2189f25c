package jobrunner

import (
	"context"
	"testing"
	"time"

	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/imagecache"
	"github.com/mondominator/opsdec/internal/store"
)

func setupTestRunner(t *testing.T) *Runner {
	t.Helper()
	st, err := store.Open(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cache, err := imagecache.New(st, config.ImageCacheConfig{
		Directory:      t.TempDir(),
		TTL:            time.Hour,
		MaxSizeBytes:   1 << 20,
		AllowedSchemes: []string{"http", "https"},
	}, nil)
	if err != nil {
		t.Fatalf("imagecache.New() error = %v", err)
	}

	return New(st, cache, 20*time.Millisecond, time.Hour, 1<<20)
}

func TestRunner_SweepsImmediatelyThenOnInterval(t *testing.T) {
	r := setupTestRunner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := r.Serve(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("Serve() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRunner_ServeStopsOnCancel(t *testing.T) {
	r := setupTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestRunner_NilCacheOnlyCheckpoints(t *testing.T) {
	st, err := store.Open(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	r := New(st, nil, time.Hour, time.Hour, 1<<20)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := r.Serve(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Serve() error = %v, want context.DeadlineExceeded", err)
	}
}
