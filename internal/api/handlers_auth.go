package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mondominator/opsdec/internal/audit"
	"github.com/mondominator/opsdec/internal/authcore"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

type updateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
	IsAdmin  *bool   `json:"is_admin,omitempty"`
}

func (a *API) handleSetupRequired(w http.ResponseWriter, r *http.Request) {
	required, err := a.auth.SetupRequired(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"setupRequired": required})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	var callerIsAdmin bool
	if token := bearerOrCookie(r); token != "" {
		if claims, err := a.tokens.Verify(token); err == nil {
			callerIsAdmin = claims.IsAdmin
		}
	}

	result, err := a.auth.Register(r.Context(), authcore.RegisterInput{
		Username: req.Username, Password: req.Password, Email: req.Email,
	}, callerIsAdmin, audit.ClientIP(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	setAuthCookies(w, result.AccessToken, result.RefreshToken, a.cfg.Security.AccessTokenTTL, a.cfg.Security.RefreshTokenTTL)
	writeJSON(w, r, http.StatusCreated, map[string]any{
		"user":         result.User,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	result, err := a.auth.Login(r.Context(), req.Username, req.Password, audit.ClientIP(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	setAuthCookies(w, result.AccessToken, result.RefreshToken, a.cfg.Security.AccessTokenTTL, a.cfg.Security.RefreshTokenTTL)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"user":         result.User,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	token := req.RefreshToken
	if token == "" {
		token = refreshFromCookie(r)
	}

	access, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"accessToken": access})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	token := req.RefreshToken
	if token == "" {
		token = refreshFromCookie(r)
	}

	if err := a.auth.Logout(r.Context(), token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	clearAuthCookies(w)
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := userFromContext(r.Context())
	user, err := a.auth.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, _, _ := userFromContext(r.Context())
	if err := a.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword, audit.ClientIP(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (a *API) handleListAuthUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateAuthUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	callerID, _, _ := userFromContext(r.Context())
	user, err := a.auth.CreateUser(r.Context(), callerID, authcore.CreateUserInput{
		Username: req.Username, Password: req.Password, Email: req.Email, IsAdmin: req.IsAdmin,
	}, audit.ClientIP(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleUpdateAuthUser(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	callerID, _, _ := userFromContext(r.Context())
	user, err := a.auth.UpdateUser(r.Context(), callerID, targetID, authcore.UpdateUserInput{
		Username: req.Username, Email: req.Email, IsActive: req.IsActive, IsAdmin: req.IsAdmin,
	}, audit.ClientIP(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleDeleteAuthUser(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	callerID, _, _ := userFromContext(r.Context())
	if err := a.auth.DeleteUser(r.Context(), callerID, targetID, audit.ClientIP(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "deleted"})
}
