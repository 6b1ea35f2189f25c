package adapter

import (
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/mondominator/opsdec/internal/models"
)

// PlexAdapter fetches active sessions from a Plex Media Server's
// /status/sessions endpoint, authenticating via X-Plex-Token.
type PlexAdapter struct {
	httpClient *http.Client
}

// NewPlexAdapter builds a PlexAdapter using httpClient, or a default client
// if nil.
func NewPlexAdapter(httpClient *http.Client) *PlexAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PlexAdapter{httpClient: httpClient}
}

func (a *PlexAdapter) Kind() models.ServerKind { return models.ServerKindPlex }

type plexSessionsResponse struct {
	MediaContainer struct {
		Metadata []plexSession `json:"Metadata"`
	} `json:"MediaContainer"`
}

type plexSession struct {
	RatingKey        string `json:"ratingKey"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	ParentTitle      string `json:"parentTitle"`
	GrandparentTitle string `json:"grandparentTitle"`
	Year             int    `json:"year"`
	Duration         int64  `json:"duration"`
	ViewOffset       int64  `json:"viewOffset"`
	Thumb            string `json:"thumb"`
	Session          struct {
		ID string `json:"id"`
	} `json:"Session"`
	User struct {
		ID string `json:"id"`
	} `json:"User"`
	Player struct {
		Address string `json:"address"`
		State   string `json:"state"`
	} `json:"Player"`
}

// Fetch implements Adapter.
func (a *PlexAdapter) Fetch(ctx context.Context, server *models.Server, credential string) ([]UpstreamSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.BaseURL+"/status/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("build plex sessions request: %w", err)
	}
	req.Header.Set("X-Plex-Token", credential)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch plex sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plex sessions request returned status %d", resp.StatusCode)
	}

	var parsed plexSessionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode plex sessions response: %w", err)
	}

	out := make([]UpstreamSession, 0, len(parsed.MediaContainer.Metadata))
	for _, m := range parsed.MediaContainer.Metadata {
		durationSeconds := float64(m.Duration) / 1000
		offsetSeconds := float64(m.ViewOffset) / 1000
		var progress float64
		if durationSeconds > 0 {
			progress = offsetSeconds / durationSeconds * 100
		}

		out = append(out, UpstreamSession{
			SessionKey: m.Session.ID,
			UserID:     m.User.ID,
			Media: models.MediaDescriptor{
				MediaType:        normalizePlexType(m.Type),
				MediaID:          m.RatingKey,
				Title:            m.Title,
				ParentTitle:      m.ParentTitle,
				GrandparentTitle: m.GrandparentTitle,
				Year:             intPtrOrNil(m.Year),
				ThumbURL:         m.Thumb,
				DurationSeconds:  durationSeconds,
			},
			Playing:            m.Player.State == "playing",
			ProgressPercent:    progress,
			CurrentTimeSeconds: offsetSeconds,
			IPAddress:          m.Player.Address,
		})
	}
	return out, nil
}

func normalizePlexType(t string) string {
	switch t {
	case "episode", "movie", "track":
		return t
	default:
		return t
	}
}

func intPtrOrNil(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
