package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mondominator/opsdec/internal/models"
)

type createServerRequest struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	BaseURL    string `json:"base_url"`
	Credential string `json:"credential"`
	Enabled    bool   `json:"enabled"`
}

type updateServerRequest struct {
	Name       string  `json:"name,omitempty"`
	BaseURL    string  `json:"base_url,omitempty"`
	Credential *string `json:"credential,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

func (a *API) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := a.store.ListServers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"servers": servers})
}

func (a *API) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Kind == "" || req.Name == "" || req.BaseURL == "" {
		writeError(w, r, http.StatusBadRequest, "kind, name, and base_url are required")
		return
	}

	encrypted, err := a.encryptor.Encrypt(req.Credential)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "credential is required")
		return
	}

	srv := &models.Server{
		Kind:                models.ServerKind(req.Kind),
		Name:                req.Name,
		BaseURL:             req.BaseURL,
		EncryptedCredential: encrypted,
		Enabled:             req.Enabled,
		Origin:              models.ServerOriginUser,
	}
	if err := a.store.CreateServer(r.Context(), srv); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{"server": srv})
}

func (a *API) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	srv, err := a.store.GetServer(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req updateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		srv.Name = req.Name
	}
	if req.BaseURL != "" {
		srv.BaseURL = req.BaseURL
	}
	if req.Enabled != nil {
		srv.Enabled = *req.Enabled
	}
	if req.Credential != nil && *req.Credential != "" {
		encrypted, err := a.encryptor.Encrypt(*req.Credential)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid credential")
			return
		}
		srv.EncryptedCredential = encrypted
	}

	if err := a.store.UpdateServer(r.Context(), srv); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"server": srv})
}

func (a *API) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.store.DeleteServer(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "deleted"})
}

// handleTestServer exercises the server's Adapter once, reporting either the
// number of sessions observed or the upstream error, without persisting
// anything — used by the admin UI's "test connection" action.
func (a *API) handleTestServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	srv, err := a.store.GetServer(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	adapterImpl, ok := a.adapters.For(srv.Kind)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "no adapter registered for server kind")
		return
	}

	credential, err := a.encryptor.Decrypt(srv.EncryptedCredential)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sessions, err := adapterImpl.Fetch(ctx, srv, credential)
	if err != nil {
		writeJSON(w, r, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "sessionCount": len(sessions)})
}

// handleServerHealth reports each polled server's circuit breaker state.
func (a *API) handleServerHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"breakers": a.engine.BreakerStates()})
}
