// Package models holds the normalized domain types shared across store,
// sessionengine, authcore, pushhub, and the API layer.
package models

import "time"

// ServerKind enumerates the upstream media server vendors this system knows
// how to normalize sessions from. An Adapter exists per kind (see package
// adapter); the core treats kind as an opaque label.
type ServerKind string

const (
	ServerKindPlex           ServerKind = "plex"
	ServerKindEmby           ServerKind = "emby"
	ServerKindJellyfin       ServerKind = "jellyfin"
	ServerKindAudiobookshelf ServerKind = "audiobookshelf"
)

// ServerOrigin distinguishes operator-managed Servers from ones injected at
// startup via bootstrap environment configuration.
type ServerOrigin string

const (
	ServerOriginUser        ServerOrigin = "user"
	ServerOriginEnvironment ServerOrigin = "environment"
)

// Server is one configured upstream media service.
type Server struct {
	ID                 string       `json:"id"`
	Kind               ServerKind   `json:"kind"`
	Name               string       `json:"name"`
	BaseURL            string       `json:"base_url"`
	EncryptedCredential string      `json:"-"`
	Enabled            bool         `json:"enabled"`
	Origin             ServerOrigin `json:"origin"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// SessionState is the lifecycle state of a tracked playback session.
type SessionState string

const (
	SessionPlaying SessionState = "playing"
	SessionPaused  SessionState = "paused"
	SessionStopped SessionState = "stopped"
)

// MediaDescriptor is the normalized shape of "what is being played",
// shared between Session and HistoryRecord.
type MediaDescriptor struct {
	MediaType        string  `json:"media_type"`
	MediaID          string  `json:"media_id"`
	Title            string  `json:"title"`
	ParentTitle      string  `json:"parent_title,omitempty"`
	GrandparentTitle string  `json:"grandparent_title,omitempty"`
	Season           *int    `json:"season,omitempty"`
	Episode          *int    `json:"episode,omitempty"`
	Year             *int    `json:"year,omitempty"`
	ThumbURL         string  `json:"thumb_url,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

// IsAudio reports whether this media type is exempt from the progress-percent
// history-recording check (spec: audiobook/track/book).
func (m MediaDescriptor) IsAudio() bool {
	switch m.MediaType {
	case "audiobook", "track", "book":
		return true
	default:
		return false
	}
}

// Session is one in-progress (or just-terminated) playback on an upstream,
// identified by the composite (ServerID, SessionKey).
type Session struct {
	ID                 string       `json:"id"`
	ServerID           string       `json:"server_id"`
	SessionKey         string       `json:"session_key"`
	UserID             string       `json:"user_id"`
	Media              MediaDescriptor `json:"media"`
	State              SessionState `json:"state"`
	ProgressPercent    float64      `json:"progress_percent"`
	CurrentTimeSeconds float64      `json:"current_time_seconds"`
	StartedAt          int64        `json:"started_at"`
	UpdatedAt          int64        `json:"updated_at"`
	StoppedAt          *int64       `json:"stopped_at,omitempty"`
	PlaybackTime       float64      `json:"playback_time"`
	LastPositionUpdate *int64       `json:"last_position_update,omitempty"`
	PausedCounter      int          `json:"paused_counter"`
	IPAddress          string       `json:"ip_address,omitempty"`
	Geo                *Geo         `json:"geo,omitempty"`
}

// Geo is an optional IP geolocation snapshot, populated by an external
// collaborator (non-goal: geolocation lookups are out of core scope).
type Geo struct {
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// ActiveSession is the shape broadcast to PushHub subscribers: a Session
// still in a live state, trimmed to what a live-activity view needs.
type ActiveSession = Session

// HistoryRecord is an immutable record of a completed session that satisfied
// the history-recording policy.
type HistoryRecord struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	ServerKind      ServerKind      `json:"server_kind"`
	UserID          string          `json:"user_id"`
	Username        string          `json:"username"`
	Media           MediaDescriptor `json:"media"`
	WatchedAt       int64           `json:"watched_at"`
	MediaDuration   float64         `json:"media_duration"`
	PercentComplete float64         `json:"percent_complete"`
	StreamDuration  float64         `json:"stream_duration"`
	IPAddress       string          `json:"ip_address,omitempty"`
	Geo             *Geo            `json:"geo,omitempty"`
}

// User is an upstream user as observed across servers.
type User struct {
	ID             string     `json:"id"`
	ServerKind     ServerKind `json:"server_kind"`
	Username       string     `json:"username"`
	ThumbURL       string     `json:"thumb_url,omitempty"`
	LastSeen       int64      `json:"last_seen"`
	HistoryEnabled bool       `json:"history_enabled"`
	TotalPlays     int64      `json:"total_plays"`
	TotalDuration  float64    `json:"total_duration"`
}

// AuthUser is a local operator account.
type AuthUser struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	IsActive     bool       `json:"is_active"`
	Email        string     `json:"email,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// RefreshToken is a server-tracked long-lived credential exchangeable for a
// fresh access token.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
	Revoked   bool      `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// ImageCacheEntry describes one content-addressed cached thumbnail.
type ImageCacheEntry struct {
	URLHash        string    `json:"url_hash"`
	OriginalURL    string    `json:"original_url"`
	RelativePath   string    `json:"relative_path"`
	ContentType    string    `json:"content_type"`
	FileSize       int64     `json:"file_size"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Setting is a process-wide key/value configuration row.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
