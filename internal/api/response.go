// Package api wires opsdec's HTTP surface: chi routing, bearer/cookie auth,
// and the handlers that expose Store, AuthCore, SessionEngine, ImageCache,
// and PushHub to a frontend.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/mondominator/opsdec/internal/logging"
)

// writeJSON encodes v as the response body. An encode failure can't change
// the status line at this point, so it's logged rather than surfaced to the
// client.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("encode response body failed")
	}
}

// errorBody is the literal {"error": "..."} shape spec.md's error responses
// use.
type errorBody struct {
	Error string `json:"error"`
}

// writeError writes a flat {"error": message} body at status.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorBody{Error: message})
}

// writeServiceError maps err to a status code via statusForError and writes
// its message verbatim, so the literal substrings authcore/cryptokit/
// imagecache/store sentinel errors carry reach the response body unchanged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Msg("internal error handling request")
		writeError(w, r, status, "internal server error")
		return
	}
	writeError(w, r, status, err.Error())
}
