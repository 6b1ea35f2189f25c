package api

import "net/http"

// handleRestart signals cmd/server's supervisor loop to shut down and let
// the process manager restart the binary. The signal is best-effort: if
// nothing is listening (restart wasn't wired, or a prior request already
// fired), the request still succeeds rather than blocking on a full channel.
func (a *API) handleRestart(w http.ResponseWriter, r *http.Request) {
	if a.restart != nil {
		select {
		case a.restart <- struct{}{}:
		default:
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "restart requested"})
}
