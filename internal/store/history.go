package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mondominator/opsdec/internal/models"
)

// HistoryCursor identifies a position in the (watched_at, id) ordering used
// for keyset pagination over history_records, avoiding the cost of a large
// OFFSET scan on deep pages.
type HistoryCursor struct {
	WatchedAt int64
	ID        string
}

// InsertHistoryRecord writes an immutable completed-session record.
func (s *Store) InsertHistoryRecord(ctx context.Context, rec *models.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO history_records (
			id, session_id, server_kind, user_id, username, media_type, media_id, title,
			parent_title, grandparent_title, season, episode, year, thumb_url,
			watched_at, media_duration, percent_complete, stream_duration, ip_address,
			geo_city, geo_country, geo_latitude, geo_longitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, string(rec.ServerKind), rec.UserID, rec.Username, rec.Media.MediaType, rec.Media.MediaID, rec.Media.Title,
		nullableString(rec.Media.ParentTitle), nullableString(rec.Media.GrandparentTitle), rec.Media.Season, rec.Media.Episode, rec.Media.Year,
		nullableString(rec.Media.ThumbURL),
		rec.WatchedAt, rec.MediaDuration, rec.PercentComplete, rec.StreamDuration, nullableString(rec.IPAddress),
		geoField(rec.Geo, "city"), geoField(rec.Geo, "country"), geoFloat(rec.Geo, "lat"), geoFloat(rec.Geo, "lon"),
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// HistoryRecordExists reports whether a history record already exists for
// the given (session_id, media_id) pair, enforcing the at-most-one-record
// invariant before SessionEngine inserts on termination.
func (s *Store) HistoryRecordExists(ctx context.Context, sessionID, mediaID string) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM history_records WHERE session_id = ? AND media_id = ?",
		sessionID, mediaID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check history record existence: %w", err)
	}
	return count > 0, nil
}

// DeleteHistoryRecord removes a history record by ID.
func (s *Store) DeleteHistoryRecord(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, "DELETE FROM history_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete history record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete history record rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const historySelectColumns = `
	SELECT id, session_id, server_kind, user_id, username, media_type, media_id, title,
		parent_title, grandparent_title, season, episode, year, thumb_url,
		watched_at, media_duration, percent_complete, stream_duration, ip_address,
		geo_city, geo_country, geo_latitude, geo_longitude
	FROM history_records`

// ListHistory returns up to limit history records older than cursor (or the
// newest page if cursor is nil), newest first.
func (s *Store) ListHistory(ctx context.Context, limit int, cursor *HistoryCursor, userID string) ([]*models.HistoryRecord, *HistoryCursor, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	query := historySelectColumns
	var args []interface{}

	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}

	if cursor != nil {
		if userID != "" {
			query += " AND"
		} else {
			query += " WHERE"
		}
		query += " (watched_at, id) < (?, CAST(? AS UUID))"
		args = append(args, cursor.WatchedAt, cursor.ID)
	}

	query += " ORDER BY watched_at DESC, id DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err = s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*models.HistoryRecord
	for rows.Next() {
		rec, err := scanHistoryRecord(rows)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *HistoryCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &HistoryCursor{WatchedAt: last.WatchedAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}

// DashboardStats summarizes history for the GET /stats/dashboard endpoint.
type DashboardStats struct {
	TotalPlays     int64
	TotalDuration  float64
	UniqueUsers    int64
	Since          time.Time
}

// DashboardStatsSince aggregates history_records watched at or after since.
func (s *Store) DashboardStatsSince(ctx context.Context, since time.Time) (*DashboardStats, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(stream_duration), 0), COUNT(DISTINCT user_id)
		FROM history_records WHERE watched_at >= ?`, since.Unix())

	stats := &DashboardStats{Since: since}
	if err := row.Scan(&stats.TotalPlays, &stats.TotalDuration, &stats.UniqueUsers); err != nil {
		return nil, fmt.Errorf("scan dashboard stats: %w", err)
	}
	return stats, nil
}

func scanHistoryRecord(rows *sql.Rows) (*models.HistoryRecord, error) {
	var rec models.HistoryRecord
	var serverKind string
	var parentTitle, grandparentTitle, thumbURL, ipAddress sql.NullString
	var geoCity, geoCountry sql.NullString
	var geoLat, geoLon sql.NullFloat64

	err := rows.Scan(
		&rec.ID, &rec.SessionID, &serverKind, &rec.UserID, &rec.Username, &rec.Media.MediaType, &rec.Media.MediaID, &rec.Media.Title,
		&parentTitle, &grandparentTitle, &rec.Media.Season, &rec.Media.Episode, &rec.Media.Year, &thumbURL,
		&rec.WatchedAt, &rec.MediaDuration, &rec.PercentComplete, &rec.StreamDuration, &ipAddress,
		&geoCity, &geoCountry, &geoLat, &geoLon,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan history record: %w", err)
	}

	rec.ServerKind = models.ServerKind(serverKind)
	rec.Media.ParentTitle = parentTitle.String
	rec.Media.GrandparentTitle = grandparentTitle.String
	rec.Media.ThumbURL = thumbURL.String
	rec.IPAddress = ipAddress.String
	if geoCity.Valid || geoCountry.Valid {
		rec.Geo = &models.Geo{City: geoCity.String, Country: geoCountry.String, Latitude: geoLat.Float64, Longitude: geoLon.Float64}
	}
	return &rec, nil
}
