package sessionengine

import (
	"context"
	"testing"

	"github.com/mondominator/opsdec/internal/adapter"
	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/models"
	"github.com/mondominator/opsdec/internal/store"
)

func setupTestEngine(t *testing.T) (*Engine, *store.Store, *models.Server) {
	t.Helper()
	st, err := store.Open(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := &models.Server{Kind: models.ServerKindPlex, Name: "plex", BaseURL: "http://plex.local", Enabled: true}
	if err := st.CreateServer(context.Background(), srv); err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}

	e := New(st, adapter.NewRegistry(), nil, nil, config.SessionEngineConfig{}, config.HistoryConfig{
		MinDurationSeconds: 5,
		MinPercent:         10,
		ExclusionPatterns:  []string{"theme"},
	})
	return e, st, srv
}

// runReconcile drives one reconcile call directly against the real store,
// mirroring what Engine.runCycle does inside ReconcileCycle.
func runReconcile(t *testing.T, e *Engine, st *store.Store, servers []*models.Server, snapshots map[string][]adapter.UpstreamSession) {
	t.Helper()
	err := st.ReconcileCycle(context.Background(), func(tx *store.Store) error {
		return e.reconcile(context.Background(), tx, servers, snapshots)
	})
	if err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}
}

func TestReconcile_PlayPauseStopAccumulatesPlaybackTime(t *testing.T) {
	e, st, srv := setupTestEngine(t)
	servers := []*models.Server{srv}
	ctx := context.Background()

	media := models.MediaDescriptor{MediaType: "movie", MediaID: "m1", Title: "A Movie", DurationSeconds: 7200}

	// Initial observation: playing.
	snap := map[string][]adapter.UpstreamSession{
		srv.ID: {{SessionKey: "sess-1", UserID: "u1", Media: media, Playing: true, CurrentTimeSeconds: 0, ProgressPercent: 0}},
	}
	runReconcile(t, e, st, servers, snap)

	active, err := st.ListActiveSessions(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("ListActiveSessions() = %v, %v, want 1 session", active, err)
	}
	sess := active[0]
	if sess.State != models.SessionPlaying {
		t.Fatalf("State = %v, want playing", sess.State)
	}

	// Force the bookkeeping fields backward in time to simulate 30 elapsed
	// seconds of real playback between ticks, then rerun still playing.
	past := sess.StartedAt - 30
	sess.LastPositionUpdate = &past
	sess.UpdatedAt = past
	if err := st.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	snap = map[string][]adapter.UpstreamSession{
		srv.ID: {{SessionKey: "sess-1", UserID: "u1", Media: media, Playing: true, CurrentTimeSeconds: 30, ProgressPercent: 40}},
	}
	runReconcile(t, e, st, servers, snap)

	active, _ = st.ListActiveSessions(ctx)
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}
	if active[0].PlaybackTime < 29 {
		t.Fatalf("PlaybackTime = %v, want >= 29", active[0].PlaybackTime)
	}

	// Transition to paused: paused_counter increments, playback_time frozen.
	playbackBeforePause := active[0].PlaybackTime
	snap = map[string][]adapter.UpstreamSession{
		srv.ID: {{SessionKey: "sess-1", UserID: "u1", Media: media, Playing: false, CurrentTimeSeconds: 30, ProgressPercent: 40}},
	}
	runReconcile(t, e, st, servers, snap)

	active, _ = st.ListActiveSessions(ctx)
	if len(active) != 1 {
		t.Fatalf("expected 1 active session after pause, got %d", len(active))
	}
	if active[0].State != models.SessionPaused {
		t.Fatalf("State = %v, want paused", active[0].State)
	}
	if active[0].PausedCounter != 1 {
		t.Fatalf("PausedCounter = %d, want 1", active[0].PausedCounter)
	}
	if active[0].PlaybackTime != playbackBeforePause {
		t.Fatalf("PlaybackTime changed during pause: %v -> %v", playbackBeforePause, active[0].PlaybackTime)
	}

	// Absence from the next snapshot terminates the session and, since it
	// cleared both minimums, records history.
	runReconcile(t, e, st, servers, map[string][]adapter.UpstreamSession{srv.ID: {}})

	active, _ = st.ListActiveSessions(ctx)
	if len(active) != 0 {
		t.Fatalf("expected session to be terminated, got %d active", len(active))
	}

	records, _, err := st.ListHistory(ctx, 10, nil, "")
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(records))
	}
	if records[0].StreamDuration < 29 {
		t.Fatalf("StreamDuration = %v, want >= 29", records[0].StreamDuration)
	}
}

func TestReconcile_TerminatedSessionIsRetainedNotDeleted(t *testing.T) {
	e, st, srv := setupTestEngine(t)
	servers := []*models.Server{srv}
	ctx := context.Background()

	media := models.Media{MediaID: "m1", Title: "Movie", MediaType: "movie", DurationSeconds: 100}
	runReconcile(t, e, st, servers, map[string][]adapter.UpstreamSession{
		srv.ID: {{SessionKey: "sess-1", UserID: "u1", Media: media, Playing: true, CurrentTimeSeconds: 50, ProgressPercent: 50}},
	})

	// Absence terminates the session; the row must survive as durable
	// evidence rather than being removed.
	runReconcile(t, e, st, servers, map[string][]adapter.UpstreamSession{srv.ID: {}})

	sess, err := st.GetSession(ctx, srv.ID, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v, want the stopped row to still exist", err)
	}
	if sess.State != models.SessionStopped {
		t.Fatalf("State = %v, want stopped", sess.State)
	}
	if sess.StoppedAt == nil {
		t.Fatal("StoppedAt is nil, want it set once a session is stopped")
	}

	active, err := st.ListActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ListActiveSessions() error = %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected 0 active sessions after termination, got %d", len(active))
	}
}

func TestReconcile_AudioExemptFromPercentCheck(t *testing.T) {
	e, st, srv := setupTestEngine(t)
	servers := []*models.Server{srv}
	ctx := context.Background()

	media := models.MediaDescriptor{MediaType: "audiobook", MediaID: "ab1", Title: "A Long Book", DurationSeconds: 36000}

	snap := map[string][]adapter.UpstreamSession{
		srv.ID: {{SessionKey: "sess-2", UserID: "u2", Media: media, Playing: true, CurrentTimeSeconds: 0, ProgressPercent: 0}},
	}
	runReconcile(t, e, st, servers, snap)

	active, _ := st.ListActiveSessions(ctx)
	sess := active[0]
	past := sess.StartedAt - 120
	sess.LastPositionUpdate = &past
	if err := st.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	// Still playing, low percent (5%), then absence terminates it.
	snap = map[string][]adapter.UpstreamSession{
		srv.ID: {{SessionKey: "sess-2", UserID: "u2", Media: media, Playing: true, CurrentTimeSeconds: 120, ProgressPercent: 5}},
	}
	runReconcile(t, e, st, servers, snap)

	runReconcile(t, e, st, servers, map[string][]adapter.UpstreamSession{srv.ID: {}})

	records, _, err := st.ListHistory(ctx, 10, nil, "")
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected audio session to be recorded despite low percent, got %d records", len(records))
	}
}

func TestReconcile_FailedFetchLeavesExistingSessionUntouched(t *testing.T) {
	e, st, srv := setupTestEngine(t)
	servers := []*models.Server{srv}
	ctx := context.Background()

	media := models.MediaDescriptor{MediaType: "movie", MediaID: "m2", Title: "Another Movie", DurationSeconds: 5400}
	snap := map[string][]adapter.UpstreamSession{
		srv.ID: {{SessionKey: "sess-3", UserID: "u3", Media: media, Playing: true}},
	}
	runReconcile(t, e, st, servers, snap)

	// Empty snapshots map (not an empty slice) simulates the server's
	// Adapter fetch failing entirely this cycle.
	runReconcile(t, e, st, servers, map[string][]adapter.UpstreamSession{})

	active, err := st.ListActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ListActiveSessions() error = %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected session to survive a failed fetch, got %d active", len(active))
	}
}

func TestReconcile_ExcludedTitleIsNotRecorded(t *testing.T) {
	e, st, srv := setupTestEngine(t)
	servers := []*models.Server{srv}
	ctx := context.Background()

	media := models.MediaDescriptor{MediaType: "episode", MediaID: "ep1", Title: "Show Theme Song", DurationSeconds: 60}
	snap := map[string][]adapter.UpstreamSession{
		srv.ID: {{SessionKey: "sess-4", UserID: "u4", Media: media, Playing: true, ProgressPercent: 100}},
	}
	runReconcile(t, e, st, servers, snap)

	active, _ := st.ListActiveSessions(ctx)
	sess := active[0]
	past := sess.StartedAt - 60
	sess.LastPositionUpdate = &past
	if err := st.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	runReconcile(t, e, st, servers, map[string][]adapter.UpstreamSession{srv.ID: {}})

	records, _, err := st.ListHistory(ctx, 10, nil, "")
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected excluded title not to be recorded, got %d records", len(records))
	}
}
