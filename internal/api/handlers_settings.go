package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type setSettingRequest struct {
	Value string `json:"value"`
}

func (a *API) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.store.ListSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := a.store.GetSetting(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (a *API) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req setSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.store.SetSetting(r.Context(), key, req.Value); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}
