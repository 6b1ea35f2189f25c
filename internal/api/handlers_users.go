package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListUsers returns every known upstream user's aggregate play
// statistics, ordered by total watch time.
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUserStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"users": users})
}

// handleUserStats returns one user's aggregate stats. ListUserStats has no
// per-ID filter, so this scans its result set in-handler rather than
// growing the store with a single-row variant of the same query.
func (a *API) handleUserStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	users, err := a.store.ListUserStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	for _, u := range users {
		if u.ID == id {
			writeJSON(w, r, http.StatusOK, map[string]any{"user": u})
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "user not found")
}
