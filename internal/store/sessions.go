package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mondominator/opsdec/internal/models"
)

// UpsertSession inserts a session or, if one already exists for
// (server_id, session_key), overwrites its mutable fields. This is the
// write path SessionEngine uses every reconciliation tick.
func (s *Store) UpsertSession(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sessions (
			id, server_id, session_key, user_id, media_type, media_id, title, parent_title,
			grandparent_title, season, episode, year, thumb_url, duration_seconds,
			state, progress_percent, current_time_seconds, started_at, updated_at, stopped_at,
			playback_time, last_position_update, paused_counter, ip_address,
			geo_city, geo_country, geo_latitude, geo_longitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (server_id, session_key) DO UPDATE SET
			user_id = excluded.user_id,
			media_type = excluded.media_type,
			media_id = excluded.media_id,
			title = excluded.title,
			parent_title = excluded.parent_title,
			grandparent_title = excluded.grandparent_title,
			season = excluded.season,
			episode = excluded.episode,
			year = excluded.year,
			thumb_url = excluded.thumb_url,
			duration_seconds = excluded.duration_seconds,
			state = excluded.state,
			progress_percent = excluded.progress_percent,
			current_time_seconds = excluded.current_time_seconds,
			updated_at = excluded.updated_at,
			stopped_at = excluded.stopped_at,
			playback_time = excluded.playback_time,
			last_position_update = excluded.last_position_update,
			paused_counter = excluded.paused_counter,
			ip_address = excluded.ip_address,
			geo_city = excluded.geo_city,
			geo_country = excluded.geo_country,
			geo_latitude = excluded.geo_latitude,
			geo_longitude = excluded.geo_longitude`,
		sess.ID, sess.ServerID, sess.SessionKey, sess.UserID, sess.Media.MediaType, sess.Media.MediaID, sess.Media.Title,
		nullableString(sess.Media.ParentTitle), nullableString(sess.Media.GrandparentTitle), sess.Media.Season, sess.Media.Episode, sess.Media.Year,
		nullableString(sess.Media.ThumbURL), sess.Media.DurationSeconds,
		string(sess.State), sess.ProgressPercent, sess.CurrentTimeSeconds, sess.StartedAt, sess.UpdatedAt, sess.StoppedAt,
		sess.PlaybackTime, sess.LastPositionUpdate, sess.PausedCounter, nullableString(sess.IPAddress),
		geoField(sess.Geo, "city"), geoField(sess.Geo, "country"), geoFloat(sess.Geo, "lat"), geoFloat(sess.Geo, "lon"),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession returns one session by the composite (serverID, sessionKey) key.
func (s *Store) GetSession(ctx context.Context, serverID, sessionKey string) (*models.Session, error) {
	row := s.conn.QueryRowContext(ctx, sessionSelectColumns+" WHERE server_id = ? AND session_key = ?", serverID, sessionKey)
	return scanSession(row)
}

// ListActiveSessions returns every session currently in the playing or
// paused state, the set broadcast to PushHub and served by GET /activity.
func (s *Store) ListActiveSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.conn.QueryContext(ctx, sessionSelectColumns+" WHERE state IN ('playing','paused') ORDER BY started_at ASC")
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// StopSession marks a terminated session stopped, once it has been
// reconciled into history (or determined not to qualify for history). The
// row is retained as durable evidence rather than deleted; ListActiveSessions
// excludes it from then on.
func (s *Store) StopSession(ctx context.Context, id string, stoppedAt int64) error {
	if _, err := s.conn.ExecContext(ctx,
		"UPDATE sessions SET state = ?, stopped_at = ?, updated_at = ? WHERE id = ?",
		models.SessionStopped, stoppedAt, stoppedAt, id,
	); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	return nil
}

const sessionSelectColumns = `
	SELECT id, server_id, session_key, user_id, media_type, media_id, title, parent_title,
		grandparent_title, season, episode, year, thumb_url, duration_seconds,
		state, progress_percent, current_time_seconds, started_at, updated_at, stopped_at,
		playback_time, last_position_update, paused_counter, ip_address,
		geo_city, geo_country, geo_latitude, geo_longitude
	FROM sessions`

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var state string
	var parentTitle, grandparentTitle, thumbURL, ipAddress sql.NullString
	var geoCity, geoCountry sql.NullString
	var geoLat, geoLon sql.NullFloat64

	err := row.Scan(
		&sess.ID, &sess.ServerID, &sess.SessionKey, &sess.UserID, &sess.Media.MediaType, &sess.Media.MediaID, &sess.Media.Title,
		&parentTitle, &grandparentTitle, &sess.Media.Season, &sess.Media.Episode, &sess.Media.Year,
		&thumbURL, &sess.Media.DurationSeconds,
		&state, &sess.ProgressPercent, &sess.CurrentTimeSeconds, &sess.StartedAt, &sess.UpdatedAt, &sess.StoppedAt,
		&sess.PlaybackTime, &sess.LastPositionUpdate, &sess.PausedCounter, &ipAddress,
		&geoCity, &geoCountry, &geoLat, &geoLon,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.State = models.SessionState(state)
	sess.Media.ParentTitle = parentTitle.String
	sess.Media.GrandparentTitle = grandparentTitle.String
	sess.Media.ThumbURL = thumbURL.String
	sess.IPAddress = ipAddress.String
	if geoCity.Valid || geoCountry.Valid {
		sess.Geo = &models.Geo{City: geoCity.String, Country: geoCountry.String, Latitude: geoLat.Float64, Longitude: geoLon.Float64}
	}
	return &sess, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func geoField(g *models.Geo, which string) interface{} {
	if g == nil {
		return nil
	}
	switch which {
	case "city":
		return nullableString(g.City)
	case "country":
		return nullableString(g.Country)
	}
	return nil
}

func geoFloat(g *models.Geo, which string) interface{} {
	if g == nil {
		return nil
	}
	switch which {
	case "lat":
		return g.Latitude
	case "lon":
		return g.Longitude
	}
	return nil
}
