package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mondominator/opsdec/internal/store"
)

// handleListHistory serves paged history records, newest first. Pagination
// is keyset-based (cursor_watched_at/cursor_id) rather than offset, matching
// the store's (watched_at, id) index so deep pages stay cheap.
func (a *API) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var cursor *store.HistoryCursor
	if watchedAt := q.Get("cursor_watched_at"); watchedAt != "" {
		if wa, err := strconv.ParseInt(watchedAt, 10, 64); err == nil {
			cursor = &store.HistoryCursor{WatchedAt: wa, ID: q.Get("cursor_id")}
		}
	}

	records, next, err := a.store.ListHistory(r.Context(), limit, cursor, q.Get("user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{"records": records}
	if next != nil {
		resp["nextCursor"] = map[string]any{"watchedAt": next.WatchedAt, "id": next.ID}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (a *API) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.store.DeleteHistoryRecord(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "deleted"})
}
