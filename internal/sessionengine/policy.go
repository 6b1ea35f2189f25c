package sessionengine

import (
	"context"
	"strconv"
	"strings"

	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/models"
	"github.com/mondominator/opsdec/internal/store"
)

// Settings keys that override config.HistoryConfig at runtime, editable
// through the operator API without a restart.
const (
	settingHistoryMinDuration = "history_min_duration_seconds"
	settingHistoryMinPercent  = "history_min_percent"
	settingHistoryExclusions  = "history_exclusion_patterns"
)

// historyPolicy holds the resolved thresholds a terminated session is
// judged against before a HistoryRecord is written.
type historyPolicy struct {
	minDuration float64
	minPercent  float64
	exclusions  []string
}

// loadHistoryPolicy resolves policy values from settings, falling back to
// cfg defaults for anything unset so the system still records history with
// no admin configuration at all.
func loadHistoryPolicy(ctx context.Context, tx *store.Store, cfg config.HistoryConfig) (historyPolicy, error) {
	p := historyPolicy{
		minDuration: cfg.MinDurationSeconds,
		minPercent:  cfg.MinPercent,
		exclusions:  cfg.ExclusionPatterns,
	}
	if p.minDuration <= 0 {
		p.minDuration = 30
	}
	if p.minPercent <= 0 {
		p.minPercent = 10
	}
	if len(p.exclusions) == 0 {
		p.exclusions = []string{"theme"}
	}

	settings, err := tx.ListSettings(ctx)
	if err != nil {
		return p, err
	}
	if v, ok := settings[settingHistoryMinDuration]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.minDuration = f
		}
	}
	if v, ok := settings[settingHistoryMinPercent]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.minPercent = f
		}
	}
	if v, ok := settings[settingHistoryExclusions]; ok && v != "" {
		p.exclusions = strings.Split(v, ",")
	}

	return p, nil
}

// shouldRecord evaluates the history-recording predicate for a terminated
// session whose stream_duration has already been computed: history must be
// enabled for the user, the title must not match an exclusion pattern, the
// duration must clear the minimum, and either the media is audio (exempt
// from the percent check) or percent-complete clears its minimum.
func (p historyPolicy) shouldRecord(ctx context.Context, tx *store.Store, sess *models.Session, kind models.ServerKind, duration float64) (bool, error) {
	enabled, err := tx.GetUserHistoryEnabled(ctx, sess.UserID, kind)
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, nil
	}

	title := strings.ToLower(sess.Media.Title)
	for _, pattern := range p.exclusions {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern != "" && strings.Contains(title, pattern) {
			return false, nil
		}
	}

	if duration < p.minDuration {
		return false, nil
	}

	if sess.Media.IsAudio() {
		return true, nil
	}
	return sess.ProgressPercent >= p.minPercent, nil
}
