package adapter

import (
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/mondominator/opsdec/internal/models"
)

// JellyfinAdapter fetches active sessions from a Jellyfin server's
// /Sessions endpoint, authenticating via the MediaBrowser API key scheme.
// Emby exposes a compatible response shape, so EmbyAdapter wraps this one
// with its own Kind().
type JellyfinAdapter struct {
	kind       models.ServerKind
	httpClient *http.Client
}

// NewJellyfinAdapter builds a JellyfinAdapter.
func NewJellyfinAdapter(httpClient *http.Client) *JellyfinAdapter {
	return &JellyfinAdapter{kind: models.ServerKindJellyfin, httpClient: clientOrDefault(httpClient)}
}

// NewEmbyAdapter builds an adapter for Emby, which speaks the same wire
// protocol as Jellyfin for session listing.
func NewEmbyAdapter(httpClient *http.Client) *JellyfinAdapter {
	return &JellyfinAdapter{kind: models.ServerKindEmby, httpClient: clientOrDefault(httpClient)}
}

func clientOrDefault(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}

func (a *JellyfinAdapter) Kind() models.ServerKind { return a.kind }

type jellyfinSession struct {
	ID           string `json:"Id"`
	UserID       string `json:"UserId"`
	RemoteEndPoint string `json:"RemoteEndPoint"`
	PlayState    struct {
		IsPaused   bool  `json:"IsPaused"`
		PositionTicks int64 `json:"PositionTicks"`
	} `json:"PlayState"`
	NowPlayingItem *struct {
		ID             string `json:"Id"`
		Type           string `json:"Type"`
		Name           string `json:"Name"`
		SeriesName     string `json:"SeriesName"`
		SeasonName     string `json:"SeasonName"`
		ParentIndexNumber *int `json:"ParentIndexNumber"`
		IndexNumber       *int `json:"IndexNumber"`
		ProductionYear    *int `json:"ProductionYear"`
		RunTimeTicks      int64 `json:"RunTimeTicks"`
	} `json:"NowPlayingItem"`
}

// ticksPerSecond is the .NET tick resolution (100ns ticks) Jellyfin/Emby use
// for PositionTicks and RunTimeTicks.
const ticksPerSecond = 10_000_000

// Fetch implements Adapter.
func (a *JellyfinAdapter) Fetch(ctx context.Context, server *models.Server, credential string) ([]UpstreamSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.BaseURL+"/Sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("build %s sessions request: %w", a.kind, err)
	}
	req.Header.Set("X-Emby-Token", credential)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s sessions: %w", a.kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s sessions request returned status %d", a.kind, resp.StatusCode)
	}

	var sessions []jellyfinSession
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decode %s sessions response: %w", a.kind, err)
	}

	out := make([]UpstreamSession, 0, len(sessions))
	for _, s := range sessions {
		if s.NowPlayingItem == nil {
			continue
		}
		item := s.NowPlayingItem
		durationSeconds := float64(item.RunTimeTicks) / ticksPerSecond
		positionSeconds := float64(s.PlayState.PositionTicks) / ticksPerSecond
		var progress float64
		if durationSeconds > 0 {
			progress = positionSeconds / durationSeconds * 100
		}

		out = append(out, UpstreamSession{
			SessionKey: s.ID,
			UserID:     s.UserID,
			Media: models.MediaDescriptor{
				MediaType:        normalizeJellyfinType(item.Type),
				MediaID:          item.ID,
				Title:            item.Name,
				ParentTitle:      item.SeasonName,
				GrandparentTitle: item.SeriesName,
				Season:           item.ParentIndexNumber,
				Episode:          item.IndexNumber,
				Year:             item.ProductionYear,
				DurationSeconds:  durationSeconds,
			},
			Playing:            !s.PlayState.IsPaused,
			ProgressPercent:    progress,
			CurrentTimeSeconds: positionSeconds,
			IPAddress:          s.RemoteEndPoint,
		})
	}
	return out, nil
}

func normalizeJellyfinType(t string) string {
	switch t {
	case "Episode":
		return "episode"
	case "Movie":
		return "movie"
	case "Audio":
		return "track"
	case "AudioBook":
		return "audiobook"
	default:
		return t
	}
}
