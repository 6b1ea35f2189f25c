package sessionengine

import (
	"context"
	"fmt"
	"time"

	"github.com/mondominator/opsdec/internal/adapter"
	"github.com/mondominator/opsdec/internal/logging"
	"github.com/mondominator/opsdec/internal/metrics"
	"github.com/mondominator/opsdec/internal/models"
	"github.com/mondominator/opsdec/internal/store"
)

// reconcile applies one poll cycle's snapshots against tx's persisted
// sessions, following the state machine: a session absent from a
// successfully-fetched snapshot for its server is treated as stopped; a
// server whose fetch failed this cycle (absent from snapshots) contributes
// no information and its existing sessions are left untouched.
func (e *Engine) reconcile(ctx context.Context, tx *store.Store, servers []*models.Server, snapshots map[string][]adapter.UpstreamSession) error {
	now := time.Now().Unix()

	policy, err := loadHistoryPolicy(ctx, tx, e.historyCfg)
	if err != nil {
		return fmt.Errorf("load history policy: %w", err)
	}

	kindByServer := make(map[string]models.ServerKind, len(servers))
	for _, srv := range servers {
		kindByServer[srv.ID] = srv.Kind
	}

	dbSessions, err := tx.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	byKey := make(map[string]*models.Session, len(dbSessions))
	for _, s := range dbSessions {
		byKey[s.ServerID+"\x00"+s.SessionKey] = s
	}

	seen := make(map[string]bool, len(dbSessions))

	for _, srv := range servers {
		upstream, fetched := snapshots[srv.ID]
		if !fetched {
			continue // this server's Adapter failed this cycle; no new information
		}

		for _, up := range upstream {
			key := srv.ID + "\x00" + up.SessionKey
			seen[key] = true

			prior := byKey[key]
			sess := applyUpstream(prior, srv, up, now)

			if err := tx.UpsertUser(ctx, &models.User{
				ID:             up.UserID,
				ServerKind:     srv.Kind,
				Username:       up.UserID,
				LastSeen:       now,
				HistoryEnabled: true,
			}); err != nil {
				logging.Warn().Err(err).Str("user_id", up.UserID).Msg("upsert user failed")
			}

			if err := tx.UpsertSession(ctx, sess); err != nil {
				return fmt.Errorf("upsert session %s: %w", sess.ID, err)
			}
		}
	}

	for _, sess := range dbSessions {
		key := sess.ServerID + "\x00" + sess.SessionKey
		if seen[key] {
			continue
		}
		// Only penalize absence for servers whose Adapter actually reported a
		// snapshot this cycle; an unfetched server's sessions stay untouched.
		if _, fetched := snapshots[sess.ServerID]; !fetched {
			continue
		}
		stoppedAt := now
		sess.StoppedAt = &stoppedAt
		if err := e.terminate(ctx, tx, sess, kindByServer[sess.ServerID], policy, now); err != nil {
			return err
		}
	}

	return nil
}

// applyUpstream folds one upstream observation into the prior persisted
// session (nil if this is a brand-new session), implementing the
// playback_time/paused_counter/last_position_update transition rules.
func applyUpstream(prior *models.Session, srv *models.Server, up adapter.UpstreamSession, now int64) *models.Session {
	newState := models.SessionPlaying
	if !up.Playing {
		newState = models.SessionPaused
	}

	if prior == nil {
		sess := &models.Session{
			ServerID:           srv.ID,
			SessionKey:         up.SessionKey,
			UserID:             up.UserID,
			Media:              up.Media,
			State:              newState,
			ProgressPercent:    up.ProgressPercent,
			CurrentTimeSeconds: up.CurrentTimeSeconds,
			StartedAt:          now,
			UpdatedAt:          now,
			IPAddress:          up.IPAddress,
		}
		if newState == models.SessionPlaying {
			lp := now
			sess.LastPositionUpdate = &lp
		}
		return sess
	}

	sess := *prior
	sess.Media = up.Media
	sess.UserID = up.UserID
	sess.ProgressPercent = up.ProgressPercent
	sess.IPAddress = up.IPAddress

	if prior.State == models.SessionPlaying && newState == models.SessionPlaying && prior.LastPositionUpdate != nil {
		sess.PlaybackTime += float64(now - *prior.LastPositionUpdate)
	}
	if prior.State == models.SessionPlaying && newState == models.SessionPaused {
		sess.PausedCounter++
	}
	if newState == models.SessionPlaying && up.CurrentTimeSeconds != prior.CurrentTimeSeconds {
		lp := now
		sess.LastPositionUpdate = &lp
	}
	sess.CurrentTimeSeconds = up.CurrentTimeSeconds
	sess.State = newState
	if newState != models.SessionPaused {
		sess.UpdatedAt = now
	}
	return &sess
}

// terminate computes stream_duration, evaluates the history-recording
// policy, writes a HistoryRecord when it qualifies, and marks the session
// stopped. The row is retained, not deleted: state=stopped with stopped_at
// set is the durable evidence a completed stream happened.
func (e *Engine) terminate(ctx context.Context, tx *store.Store, sess *models.Session, kind models.ServerKind, policy historyPolicy, now int64) error {
	d := sess.PlaybackTime
	if d < 5 && sess.State == models.SessionPlaying && sess.LastPositionUpdate != nil {
		d = float64(now - *sess.LastPositionUpdate)
	}
	wallClock := float64(now - sess.StartedAt)
	if d > wallClock {
		d = wallClock
	}
	if sess.Media.DurationSeconds > 0 && d > sess.Media.DurationSeconds {
		d = sess.Media.DurationSeconds
	}

	shouldRecord, err := policy.shouldRecord(ctx, tx, sess, kind, d)
	if err != nil {
		return err
	}

	if shouldRecord {
		exists, err := tx.HistoryRecordExists(ctx, sess.ID, sess.Media.MediaID)
		if err != nil {
			return fmt.Errorf("check existing history record: %w", err)
		}
		if !exists {
			rec := &models.HistoryRecord{
				SessionID:       sess.ID,
				ServerKind:      kind,
				UserID:          sess.UserID,
				Username:        sess.UserID,
				Media:           sess.Media,
				WatchedAt:       now,
				MediaDuration:   sess.Media.DurationSeconds,
				PercentComplete: sess.ProgressPercent,
				StreamDuration:  d,
				IPAddress:       sess.IPAddress,
				Geo:             sess.Geo,
			}
			if err := tx.InsertHistoryRecord(ctx, rec); err != nil {
				return fmt.Errorf("insert history record: %w", err)
			}
			if err := tx.IncrementUserStats(ctx, sess.UserID, kind, d); err != nil {
				logging.Warn().Err(err).Str("user_id", sess.UserID).Msg("increment user stats failed")
			}
			metrics.HistoryRecordsWritten.Inc()
		}
	}

	if err := tx.StopSession(ctx, sess.ID, now); err != nil {
		return fmt.Errorf("stop terminated session %s: %w", sess.ID, err)
	}
	return nil
}
