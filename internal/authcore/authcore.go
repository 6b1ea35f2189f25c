// Package authcore implements first-user bootstrap, login, refresh-token
// rotation, password change with session-wide invalidation, and admin
// self-protection for local operator accounts.
package authcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mondominator/opsdec/internal/audit"
	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/cryptokit"
	"github.com/mondominator/opsdec/internal/models"
	"github.com/mondominator/opsdec/internal/store"
)

// Sentinel errors the API layer maps to HTTP status codes.
var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrAccountDisabled      = errors.New("account is disabled")
	ErrRegistrationClosed   = errors.New("registration requires an administrator")
	ErrDuplicateUsername    = errors.New("username is already taken")
	ErrCannotRemoveAdmin    = errors.New("Cannot remove own admin status")
	ErrCannotDeactivateSelf = errors.New("Cannot deactivate own account")
	ErrCannotDeleteSelf     = errors.New("Cannot delete own account")
	ErrRefreshTokenBad      = errors.New("Invalid refresh token")
	ErrRefreshRequired      = errors.New("Refresh token required")
	ErrUserNotFound         = errors.New("user not found")
)

// Service implements AuthCore's bootstrap/login/refresh/logout/password/
// user-management operations against Store and CryptoKit.
type Service struct {
	store   *store.Store
	tokens  *cryptokit.TokenManager
	audit   *audit.Logger
	cfg     config.SecurityConfig
}

// New builds a Service. auditLogger may be nil in tests, in which case
// audit.Logger's nil-receiver methods make Record/Close safe no-ops.
func New(st *store.Store, tokens *cryptokit.TokenManager, auditLogger *audit.Logger, cfg config.SecurityConfig) *Service {
	return &Service{store: st, tokens: tokens, audit: auditLogger, cfg: cfg}
}

// AuthResult is returned by Register and Login: the public user view plus
// a fresh token pair.
type AuthResult struct {
	User         *models.AuthUser
	AccessToken  string
	RefreshToken string
}

// SetupRequired reports whether no operator accounts exist yet, meaning
// POST /auth/register is open to the public for exactly one call.
func (s *Service) SetupRequired(ctx context.Context) (bool, error) {
	count, err := s.store.CountAuthUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count auth users: %w", err)
	}
	return count == 0, nil
}

// RegisterInput carries the fields POST /auth/register accepts.
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// Register creates a new operator account. If the table is currently
// empty the caller needs no authorization and the new account is granted
// admin; otherwise callerIsAdmin must be true.
func (s *Service) Register(ctx context.Context, in RegisterInput, callerIsAdmin bool, ip string) (*AuthResult, error) {
	setupRequired, err := s.SetupRequired(ctx)
	if err != nil {
		return nil, err
	}
	if !setupRequired && !callerIsAdmin {
		s.recordAudit(ctx, "", "", "auth.register", in.Username, audit.OutcomeFailure, "non-admin attempted registration after setup", ip)
		return nil, ErrRegistrationClosed
	}

	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.store.GetAuthUserByUsername(ctx, in.Username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing username: %w", err)
	}

	hash, err := cryptokit.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.AuthUser{
		Username:     in.Username,
		PasswordHash: hash,
		IsAdmin:      setupRequired,
		IsActive:     true,
		Email:        in.Email,
	}
	if err := s.store.CreateAuthUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create auth user: %w", err)
	}

	result, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, u.ID, u.Username, "auth.register", u.Username, audit.OutcomeSuccess, "", ip)
	return result, nil
}

// Login verifies username/password and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, username, password, ip string) (*AuthResult, error) {
	u, err := s.store.GetAuthUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		s.recordAudit(ctx, "", username, "auth.login", username, audit.OutcomeFailure, "unknown username", ip)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load auth user: %w", err)
	}
	if !u.IsActive {
		s.recordAudit(ctx, u.ID, u.Username, "auth.login", username, audit.OutcomeFailure, "account disabled", ip)
		return nil, ErrAccountDisabled
	}
	if !cryptokit.VerifyPassword(u.PasswordHash, password) {
		s.recordAudit(ctx, u.ID, u.Username, "auth.login", username, audit.OutcomeFailure, "bad password", ip)
		return nil, ErrInvalidCredentials
	}

	if err := s.store.TouchAuthUserLogin(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("touch last login: %w", err)
	}

	result, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, u.ID, u.Username, "auth.login", username, audit.OutcomeSuccess, "", ip)
	return result, nil
}

// Refresh verifies a refresh token and mints a fresh access token without
// rotating the refresh record.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrRefreshRequired
	}

	rt, err := s.store.GetRefreshTokenByHash(ctx, hashToken(refreshToken))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrRefreshTokenBad
	}
	if err != nil {
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	if rt.Revoked || time.Now().After(rt.ExpiresAt) {
		return "", ErrRefreshTokenBad
	}

	u, err := s.store.GetAuthUser(ctx, rt.UserID)
	if err != nil {
		return "", fmt.Errorf("load user for refresh: %w", err)
	}
	if !u.IsActive {
		return "", ErrRefreshTokenBad
	}

	access, err := s.tokens.Mint(u.ID, u.Username, u.IsAdmin)
	if err != nil {
		return "", fmt.Errorf("mint access token: %w", err)
	}
	return access, nil
}

// Logout revokes a refresh token if one was given. A missing token is a
// no-op success, for idempotency.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	rt, err := s.store.GetRefreshTokenByHash(ctx, hashToken(refreshToken))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}
	return s.store.RevokeRefreshToken(ctx, rt.ID)
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context, userID string) (*models.AuthUser, error) {
	u, err := s.store.GetAuthUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// ChangePassword verifies the caller's current password, stores the new
// hash, and revokes every outstanding refresh token for the account.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ip string) error {
	u, err := s.store.GetAuthUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !cryptokit.VerifyPassword(u.PasswordHash, currentPassword) {
		s.recordAudit(ctx, u.ID, u.Username, "auth.password_change", u.Username, audit.OutcomeFailure, "wrong current password", ip)
		return ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := cryptokit.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}
	u.PasswordHash = hash
	if err := s.store.UpdateAuthUser(ctx, u); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.store.RevokeAllRefreshTokensForUser(ctx, u.ID); err != nil {
		return fmt.Errorf("revoke outstanding sessions: %w", err)
	}
	s.recordAudit(ctx, u.ID, u.Username, "auth.password_change", u.Username, audit.OutcomeSuccess, "", ip)
	return nil
}

// ListUsers returns every operator account (admin only, enforced by the
// API layer).
func (s *Service) ListUsers(ctx context.Context) ([]*models.AuthUser, error) {
	return s.store.ListAuthUsers(ctx)
}

// CreateUserInput carries the fields an admin supplies to POST /auth/users.
type CreateUserInput struct {
	Username string
	Password string
	Email    string
	IsAdmin  bool
}

// CreateUser is the admin-only user-creation path (as opposed to the
// possibly-public Register).
func (s *Service) CreateUser(ctx context.Context, callerID string, in CreateUserInput, ip string) (*models.AuthUser, error) {
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if _, err := s.store.GetAuthUserByUsername(ctx, in.Username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing username: %w", err)
	}

	hash, err := cryptokit.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.AuthUser{
		Username:     in.Username,
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin,
		IsActive:     true,
		Email:        in.Email,
	}
	if err := s.store.CreateAuthUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create auth user: %w", err)
	}
	s.recordAudit(ctx, callerID, "", "auth.user_create", u.Username, audit.OutcomeSuccess, "", ip)
	return u, nil
}

// UpdateUserInput carries the optional mutable fields PUT /auth/users/:id
// accepts; a nil pointer means "leave unchanged".
type UpdateUserInput struct {
	Username *string
	Email    *string
	IsActive *bool
	IsAdmin  *bool
}

// UpdateUser applies an admin-supplied patch, enforcing that an admin can
// never demote or deactivate their own account through this path.
func (s *Service) UpdateUser(ctx context.Context, callerID, targetID string, in UpdateUserInput, ip string) (*models.AuthUser, error) {
	u, err := s.store.GetAuthUser(ctx, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load target user: %w", err)
	}

	isSelf := callerID == targetID
	if isSelf && in.IsAdmin != nil && !*in.IsAdmin && u.IsAdmin {
		s.recordAudit(ctx, callerID, u.Username, "auth.user_update", u.Username, audit.OutcomeFailure, "self demote blocked", ip)
		return nil, ErrCannotRemoveAdmin
	}
	if isSelf && in.IsActive != nil && !*in.IsActive {
		s.recordAudit(ctx, callerID, u.Username, "auth.user_update", u.Username, audit.OutcomeFailure, "self deactivate blocked", ip)
		return nil, ErrCannotDeactivateSelf
	}

	if in.Username != nil && *in.Username != u.Username {
		if err := validateUsername(*in.Username); err != nil {
			return nil, err
		}
		if _, err := s.store.GetAuthUserByUsername(ctx, *in.Username); err == nil {
			return nil, ErrDuplicateUsername
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check existing username: %w", err)
		}
		u.Username = *in.Username
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if in.IsAdmin != nil {
		u.IsAdmin = *in.IsAdmin
	}

	if err := s.store.UpdateAuthUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.recordAudit(ctx, callerID, u.Username, "auth.user_update", u.Username, audit.OutcomeSuccess, "", ip)
	return u, nil
}

// DeleteUser removes an operator account, refusing self-deletion.
func (s *Service) DeleteUser(ctx context.Context, callerID, targetID, ip string) error {
	if callerID == targetID {
		return ErrCannotDeleteSelf
	}
	u, err := s.store.GetAuthUser(ctx, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("load target user: %w", err)
	}
	if err := s.store.DeleteAuthUser(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.recordAudit(ctx, callerID, u.Username, "auth.user_delete", u.Username, audit.OutcomeSuccess, "", ip)
	return nil
}

func (s *Service) issueTokens(ctx context.Context, u *models.AuthUser) (*AuthResult, error) {
	access, err := s.tokens.Mint(u.ID, u.Username, u.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	refresh, err := newOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	ttl := s.cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	rt := &models.RefreshToken{UserID: u.ID, ExpiresAt: time.Now().Add(ttl)}
	if err := s.store.CreateRefreshToken(ctx, rt, hashToken(refresh)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResult{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) recordAudit(_ context.Context, actorID, actorName, action, target, outcome, detail, ip string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(audit.Event{
		ActorID:   actorID,
		ActorName: actorName,
		Action:    action,
		Target:    target,
		Outcome:   outcome,
		Detail:    detail,
		IPAddress: ip,
	})
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashToken digests an opaque refresh token before it touches the
// database, so a stolen database dump never yields usable credentials.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
