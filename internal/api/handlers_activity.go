package api

import "net/http"

// handleActivity returns the current set of live (playing or paused)
// sessions, the same snapshot PushHub broadcasts over the websocket.
func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.store.ListActiveSessions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
}
