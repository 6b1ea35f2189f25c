package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mondominator/opsdec/internal/models"
)

// UpsertUser records or refreshes an upstream user's last-seen activity.
func (s *Store) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (id, server_kind, username, thumb_url, last_seen, history_enabled, total_plays, total_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, server_kind) DO UPDATE SET
			username = excluded.username,
			thumb_url = excluded.thumb_url,
			last_seen = excluded.last_seen`,
		u.ID, string(u.ServerKind), u.Username, nullableString(u.ThumbURL), u.LastSeen, u.HistoryEnabled, u.TotalPlays, u.TotalDuration,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// IncrementUserStats adds one play and duration seconds to a user's
// aggregate totals, called when a history record is written.
func (s *Store) IncrementUserStats(ctx context.Context, id string, kind models.ServerKind, durationSeconds float64) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE users SET total_plays = total_plays + 1, total_duration = total_duration + ?
		WHERE id = ? AND server_kind = ?`,
		durationSeconds, id, string(kind),
	)
	if err != nil {
		return fmt.Errorf("increment user stats: %w", err)
	}
	return nil
}

// GetUserHistoryEnabled returns whether history recording is enabled for a
// user, defaulting to true if the user has never been seen before.
func (s *Store) GetUserHistoryEnabled(ctx context.Context, id string, kind models.ServerKind) (bool, error) {
	var enabled bool
	err := s.conn.QueryRowContext(ctx, "SELECT history_enabled FROM users WHERE id = ? AND server_kind = ?", id, string(kind)).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user history flag: %w", err)
	}
	return enabled, nil
}

// SetUserHistoryEnabled toggles per-user history recording.
func (s *Store) SetUserHistoryEnabled(ctx context.Context, id string, kind models.ServerKind, enabled bool) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (id, server_kind, username, history_enabled)
		VALUES (?, ?, '', ?)
		ON CONFLICT (id, server_kind) DO UPDATE SET history_enabled = excluded.history_enabled`,
		id, string(kind), enabled,
	)
	if err != nil {
		return fmt.Errorf("set user history flag: %w", err)
	}
	return nil
}

// UserStats is one row of the per-user leaderboard served by GET /users/stats.
type UserStats struct {
	ID            string
	ServerKind    models.ServerKind
	Username      string
	TotalPlays    int64
	TotalDuration float64
	LastSeen      int64
}

// ListUserStats returns all known users ordered by total watch time.
func (s *Store) ListUserStats(ctx context.Context) ([]*UserStats, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, server_kind, username, total_plays, total_duration, last_seen
		FROM users ORDER BY total_duration DESC`)
	if err != nil {
		return nil, fmt.Errorf("query user stats: %w", err)
	}
	defer rows.Close()

	var out []*UserStats
	for rows.Next() {
		var u UserStats
		var kind string
		if err := rows.Scan(&u.ID, &kind, &u.Username, &u.TotalPlays, &u.TotalDuration, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("scan user stats: %w", err)
		}
		u.ServerKind = models.ServerKind(kind)
		out = append(out, &u)
	}
	return out, rows.Err()
}
