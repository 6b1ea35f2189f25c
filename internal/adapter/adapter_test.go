package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mondominator/opsdec/internal/models"
)

func TestPlexAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Plex-Token"); got != "secret-token" {
			t.Errorf("X-Plex-Token header = %q, want %q", got, "secret-token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"MediaContainer":{"Metadata":[{
			"ratingKey":"100","type":"episode","title":"Pilot","parentTitle":"Season 1",
			"grandparentTitle":"Show","year":2020,"duration":1800000,"viewOffset":900000,
			"Session":{"id":"sess-1"},"User":{"id":"user-1"},
			"Player":{"address":"10.0.0.5","state":"playing"}
		}]}}`))
	}))
	defer srv.Close()

	a := NewPlexAdapter(srv.Client())
	server := &models.Server{BaseURL: srv.URL}

	sessions, err := a.Fetch(context.Background(), server, "secret-token")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Fetch() returned %d sessions, want 1", len(sessions))
	}

	got := sessions[0]
	if got.SessionKey != "sess-1" || got.UserID != "user-1" {
		t.Errorf("Fetch() session = %+v, want key sess-1/user user-1", got)
	}
	if got.Media.DurationSeconds != 1800 {
		t.Errorf("DurationSeconds = %v, want 1800", got.Media.DurationSeconds)
	}
	if got.ProgressPercent != 50 {
		t.Errorf("ProgressPercent = %v, want 50", got.ProgressPercent)
	}
	if !got.Playing {
		t.Error("Playing = false, want true")
	}
}

func TestJellyfinAdapter_Fetch_SkipsSessionsWithoutNowPlaying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"Id":"idle-session","UserId":"u1"},
			{"Id":"active-session","UserId":"u2","RemoteEndPoint":"192.168.1.2",
			 "PlayState":{"IsPaused":false,"PositionTicks":50000000},
			 "NowPlayingItem":{"Id":"m1","Type":"Movie","Name":"A Movie","RunTimeTicks":100000000}}
		]`))
	}))
	defer srv.Close()

	a := NewJellyfinAdapter(srv.Client())
	server := &models.Server{BaseURL: srv.URL}

	sessions, err := a.Fetch(context.Background(), server, "api-key")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Fetch() returned %d sessions, want 1 (idle session skipped)", len(sessions))
	}
	if sessions[0].SessionKey != "active-session" {
		t.Errorf("SessionKey = %q, want active-session", sessions[0].SessionKey)
	}
	if sessions[0].ProgressPercent != 50 {
		t.Errorf("ProgressPercent = %v, want 50", sessions[0].ProgressPercent)
	}
}

func TestRegistry_For(t *testing.T) {
	plex := NewPlexAdapter(nil)
	jellyfin := NewJellyfinAdapter(nil)
	r := NewRegistry(plex, jellyfin)

	if a, ok := r.For(models.ServerKindPlex); !ok || a != Adapter(plex) {
		t.Error("For(plex) did not return the registered PlexAdapter")
	}
	if _, ok := r.For(models.ServerKindEmby); ok {
		t.Error("For(emby) = ok, want not registered")
	}
}
