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

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("not found")

// CreateServer inserts a new Server, assigning an ID and timestamps if unset.
func (s *Store) CreateServer(ctx context.Context, srv *models.Server) error {
	if srv.ID == "" {
		srv.ID = uuid.New().String()
	}
	now := time.Now()
	if srv.CreatedAt.IsZero() {
		srv.CreatedAt = now
	}
	srv.UpdatedAt = now

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO servers (id, kind, name, base_url, encrypted_credential, enabled, origin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		srv.ID, string(srv.Kind), srv.Name, srv.BaseURL, srv.EncryptedCredential, srv.Enabled, string(srv.Origin), srv.CreatedAt, srv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert server: %w", err)
	}
	return nil
}

// GetServer returns one Server by ID.
func (s *Store) GetServer(ctx context.Context, id string) (*models.Server, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, kind, name, base_url, encrypted_credential, enabled, origin, created_at, updated_at
		FROM servers WHERE id = ?`, id)
	return scanServer(row)
}

// ListServers returns all configured Servers ordered by creation time.
func (s *Store) ListServers(ctx context.Context) ([]*models.Server, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, kind, name, base_url, encrypted_credential, enabled, origin, created_at, updated_at
		FROM servers ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	var out []*models.Server
	for rows.Next() {
		srv, err := scanServerRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

// UpdateServer replaces a Server's mutable fields.
func (s *Store) UpdateServer(ctx context.Context, srv *models.Server) error {
	srv.UpdatedAt = time.Now()
	result, err := s.conn.ExecContext(ctx, `
		UPDATE servers SET name = ?, base_url = ?, encrypted_credential = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		srv.Name, srv.BaseURL, srv.EncryptedCredential, srv.Enabled, srv.UpdatedAt, srv.ID,
	)
	if err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update server rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteServer removes a Server by ID.
func (s *Store) DeleteServer(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, "DELETE FROM servers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete server rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanServer(row rowScanner) (*models.Server, error) {
	var srv models.Server
	var kind, origin string
	if err := row.Scan(&srv.ID, &kind, &srv.Name, &srv.BaseURL, &srv.EncryptedCredential, &srv.Enabled, &origin, &srv.CreatedAt, &srv.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan server: %w", err)
	}
	srv.Kind = models.ServerKind(kind)
	srv.Origin = models.ServerOrigin(origin)
	return &srv, nil
}

func scanServerRows(rows *sql.Rows) (*models.Server, error) {
	return scanServer(rows)
}
