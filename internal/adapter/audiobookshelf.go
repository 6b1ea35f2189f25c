package adapter

import (
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/mondominator/opsdec/internal/models"
)

// AudiobookshelfAdapter fetches active sessions from an Audiobookshelf
// server's /api/sessions endpoint, authenticating with a bearer API token.
type AudiobookshelfAdapter struct {
	httpClient *http.Client
}

// NewAudiobookshelfAdapter builds an AudiobookshelfAdapter.
func NewAudiobookshelfAdapter(httpClient *http.Client) *AudiobookshelfAdapter {
	return &AudiobookshelfAdapter{httpClient: clientOrDefault(httpClient)}
}

func (a *AudiobookshelfAdapter) Kind() models.ServerKind { return models.ServerKindAudiobookshelf }

type absSessionsResponse struct {
	Sessions []absSession `json:"sessions"`
}

type absSession struct {
	ID             string  `json:"id"`
	UserID         string  `json:"userId"`
	LibraryItemID  string  `json:"libraryItemId"`
	DisplayTitle   string  `json:"displayTitle"`
	DisplayAuthor  string  `json:"displayAuthor"`
	Duration       float64 `json:"duration"`
	CurrentTime    float64 `json:"currentTime"`
	IsPlaying      bool    `json:"isPlaying"`
	ClientIP       string  `json:"clientIp"`
}

// Fetch implements Adapter.
func (a *AudiobookshelfAdapter) Fetch(ctx context.Context, server *models.Server, credential string) ([]UpstreamSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.BaseURL+"/api/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("build audiobookshelf sessions request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audiobookshelf sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audiobookshelf sessions request returned status %d", resp.StatusCode)
	}

	var parsed absSessionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode audiobookshelf sessions response: %w", err)
	}

	out := make([]UpstreamSession, 0, len(parsed.Sessions))
	for _, s := range parsed.Sessions {
		var progress float64
		if s.Duration > 0 {
			progress = s.CurrentTime / s.Duration * 100
		}
		out = append(out, UpstreamSession{
			SessionKey: s.ID,
			UserID:     s.UserID,
			Media: models.MediaDescriptor{
				MediaType:       "audiobook",
				MediaID:         s.LibraryItemID,
				Title:           s.DisplayTitle,
				GrandparentTitle: s.DisplayAuthor,
				DurationSeconds: s.Duration,
			},
			Playing:            s.IsPlaying,
			ProgressPercent:    progress,
			CurrentTimeSeconds: s.CurrentTime,
			IPAddress:          s.ClientIP,
		})
	}
	return out, nil
}
