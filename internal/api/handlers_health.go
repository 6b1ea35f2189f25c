package api

import "net/http"

// handleHealth is the unauthenticated liveness check.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
