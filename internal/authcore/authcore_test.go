package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/cryptokit"
	"github.com/mondominator/opsdec/internal/store"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tokens, err := cryptokit.NewTokenManager("01234567890123456789012345678901", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	return New(st, tokens, nil, config.SecurityConfig{RefreshTokenTTL: 24 * time.Hour})
}

func TestRegister_FirstUserBecomesAdmin(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()

	result, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, false, "127.0.0.1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !result.User.IsAdmin {
		t.Fatalf("first registered user should be admin")
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("Register() returned empty tokens")
	}
}

func TestRegister_SecondUserRequiresAdminCaller(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, false, ""); err != nil {
		t.Fatalf("Register() first user error = %v", err)
	}

	_, err := s.Register(ctx, RegisterInput{Username: "bob", Password: "hunter22"}, false, "")
	if !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("Register() error = %v, want ErrRegistrationClosed", err)
	}

	if _, err := s.Register(ctx, RegisterInput{Username: "bob", Password: "hunter22"}, true, ""); err != nil {
		t.Fatalf("Register() as admin caller error = %v", err)
	}
}

func TestRegister_DuplicateUsernameRejected(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, false, ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, true, "")
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("Register() error = %v, want ErrDuplicateUsername", err)
	}
}

func TestRegister_ShortPasswordRejected(t *testing.T) {
	s := setupTestService(t)
	_, err := s.Register(context.Background(), RegisterInput{Username: "alice", Password: "short"}, false, "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Register() error = %v, want ErrValidation", err)
	}
}

func TestLogin_WrongPasswordRejected(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, false, ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := s.Login(ctx, "alice", "wrong-password", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_DisabledAccountRejected(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	result, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, false, "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	active := false
	if _, err := s.UpdateUser(ctx, "someone-else", result.User.ID, UpdateUserInput{IsActive: &active}, ""); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	_, err = s.Login(ctx, "alice", "hunter22", "")
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("Login() error = %v, want ErrAccountDisabled", err)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	result, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, false, "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	access, err := s.Refresh(ctx, result.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if access == "" {
		t.Fatalf("Refresh() returned empty access token")
	}

	if err := s.Logout(ctx, result.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if _, err := s.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrRefreshTokenBad) {
		t.Fatalf("Refresh() after logout error = %v, want ErrRefreshTokenBad", err)
	}
}

func TestLogout_NoTokenIsNoop(t *testing.T) {
	s := setupTestService(t)
	if err := s.Logout(context.Background(), ""); err != nil {
		t.Fatalf("Logout() with no token error = %v", err)
	}
}

func TestChangePassword_RevokesOutstandingRefreshTokens(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	result, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, false, "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := s.ChangePassword(ctx, result.User.ID, "hunter22", "newpassword1", ""); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	if _, err := s.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrRefreshTokenBad) {
		t.Fatalf("Refresh() after password change error = %v, want ErrRefreshTokenBad", err)
	}

	if _, err := s.Login(ctx, "alice", "newpassword1", ""); err != nil {
		t.Fatalf("Login() with new password error = %v", err)
	}
}

func TestUpdateUser_CannotDemoteSelf(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	result, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, false, "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	notAdmin := false
	_, err = s.UpdateUser(ctx, result.User.ID, result.User.ID, UpdateUserInput{IsAdmin: &notAdmin}, "")
	if !errors.Is(err, ErrCannotRemoveAdmin) {
		t.Fatalf("UpdateUser() error = %v, want ErrCannotRemoveAdmin", err)
	}
}

func TestDeleteUser_CannotDeleteSelf(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	result, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "hunter22"}, false, "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := s.DeleteUser(ctx, result.User.ID, result.User.ID, ""); !errors.Is(err, ErrCannotDeleteSelf) {
		t.Fatalf("DeleteUser() error = %v, want ErrCannotDeleteSelf", err)
	}
}
