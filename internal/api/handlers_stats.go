package api

import (
	"net/http"
	"strconv"
	"time"
)

// handleDashboardStats summarizes history over a trailing window, default
// 30 days, overridable with ?days=.
func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	since := time.Now().AddDate(0, 0, -days)

	stats, err := a.store.DashboardStatsSince(r.Context(), since)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"totalPlays":    stats.TotalPlays,
		"totalDuration": stats.TotalDuration,
		"uniqueUsers":   stats.UniqueUsers,
		"since":         stats.Since,
	})
}
