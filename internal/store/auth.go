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

// CreateAuthUser inserts a new operator account.
func (s *Store) CreateAuthUser(ctx context.Context, u *models.AuthUser) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO auth_users (id, username, password_hash, is_admin, is_active, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.IsAdmin, u.IsActive, nullableString(u.Email), u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert auth user: %w", err)
	}
	return nil
}

// GetAuthUserByUsername looks up an operator account by username.
func (s *Store) GetAuthUserByUsername(ctx context.Context, username string) (*models.AuthUser, error) {
	row := s.conn.QueryRowContext(ctx, authUserSelectColumns+" WHERE username = ?", username)
	return scanAuthUser(row)
}

// GetAuthUser looks up an operator account by ID.
func (s *Store) GetAuthUser(ctx context.Context, id string) (*models.AuthUser, error) {
	row := s.conn.QueryRowContext(ctx, authUserSelectColumns+" WHERE id = ?", id)
	return scanAuthUser(row)
}

// ListAuthUsers returns all operator accounts ordered by creation time.
func (s *Store) ListAuthUsers(ctx context.Context) ([]*models.AuthUser, error) {
	rows, err := s.conn.QueryContext(ctx, authUserSelectColumns+" ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("query auth users: %w", err)
	}
	defer rows.Close()

	var out []*models.AuthUser
	for rows.Next() {
		u, err := scanAuthUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountAuthUsers returns the number of operator accounts, used to decide
// whether bootstrap (first-admin creation) is still required.
func (s *Store) CountAuthUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM auth_users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count auth users: %w", err)
	}
	return count, nil
}

// CountAdmins returns the number of active admin accounts, used to enforce
// the self-protection invariant that the last admin cannot be demoted,
// deactivated, or deleted.
func (s *Store) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM auth_users WHERE is_admin = true AND is_active = true").Scan(&count); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}

// UpdateAuthUser persists mutable AuthUser fields (username, admin/active
// flags, email, password hash).
func (s *Store) UpdateAuthUser(ctx context.Context, u *models.AuthUser) error {
	result, err := s.conn.ExecContext(ctx, `
		UPDATE auth_users SET username = ?, password_hash = ?, is_admin = ?, is_active = ?, email = ?
		WHERE id = ?`,
		u.Username, u.PasswordHash, u.IsAdmin, u.IsActive, nullableString(u.Email), u.ID,
	)
	if err != nil {
		return fmt.Errorf("update auth user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update auth user rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchAuthUserLogin records a successful login timestamp.
func (s *Store) TouchAuthUserLogin(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, "UPDATE auth_users SET last_login = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

// DeleteAuthUser removes an operator account.
func (s *Store) DeleteAuthUser(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, "DELETE FROM auth_users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete auth user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete auth user rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const authUserSelectColumns = `
	SELECT id, username, password_hash, is_admin, is_active, email, created_at, last_login
	FROM auth_users`

func scanAuthUser(row rowScanner) (*models.AuthUser, error) {
	var u models.AuthUser
	var email sql.NullString
	var lastLogin sql.NullTime

	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.IsActive, &email, &u.CreatedAt, &lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan auth user: %w", err)
	}
	u.Email = email.String
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

// CreateRefreshToken stores a new refresh token's hash, never the raw token.
func (s *Store) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken, tokenHash string) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = time.Now()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rt.ID, rt.UserID, tokenHash, rt.ExpiresAt, rt.Revoked, rt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshTokenByHash returns the refresh token matching tokenHash.
func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, user_id, expires_at, revoked, created_at FROM refresh_tokens WHERE token_hash = ?`, tokenHash)

	var rt models.RefreshToken
	if err := row.Scan(&rt.ID, &rt.UserID, &rt.ExpiresAt, &rt.Revoked, &rt.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a refresh token unusable (logout, rotation).
func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, "UPDATE refresh_tokens SET revoked = true WHERE id = ?", id); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllRefreshTokensForUser invalidates every outstanding refresh token
// for a user, used on password change.
func (s *Store) RevokeAllRefreshTokensForUser(ctx context.Context, userID string) error {
	if _, err := s.conn.ExecContext(ctx, "UPDATE refresh_tokens SET revoked = true WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("revoke refresh tokens for user: %w", err)
	}
	return nil
}
