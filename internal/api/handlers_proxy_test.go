package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/mondominator/opsdec/internal/models"
)

func TestHandleImageProxy_AttachesBearerForMatchedServer(t *testing.T) {
	a := newTestAPI(t)

	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("fake-jpeg-bytes"))
	}))
	defer upstream.Close()

	encrypted, err := a.encryptor.Encrypt("plex-token-123")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	srv := &models.Server{
		Kind:                models.ServerKindPlex,
		Name:                "plex",
		BaseURL:             upstream.URL,
		EncryptedCredential: encrypted,
		Enabled:             true,
	}
	if err := a.store.CreateServer(context.Background(), srv); err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}

	thumbURL := upstream.URL + "/thumb.jpg"
	req := httptest.NewRequest(http.MethodGet, "/api/proxy/image?url="+url.QueryEscape(thumbURL), nil)
	rec := httptest.NewRecorder()

	a.handleImageProxy(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	if gotAuth != "Bearer plex-token-123" {
		t.Errorf("Authorization header = %q, want Bearer plex-token-123", gotAuth)
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("X-Cache = %q, want MISS on first fetch", rec.Header().Get("X-Cache"))
	}

	// Second request hits the cache; upstream must not see a second request
	// and no Authorization header is needed.
	gotAuth = ""
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/proxy/image?url="+url.QueryEscape(thumbURL), nil)
	a.handleImageProxy(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", rec2.Code, rec2.Body.String())
	}
	if rec2.Header().Get("X-Cache") != "HIT" {
		t.Errorf("X-Cache = %q, want HIT on second fetch", rec2.Header().Get("X-Cache"))
	}
	if gotAuth != "" {
		t.Errorf("upstream was contacted again on a cache hit, got Authorization %q", gotAuth)
	}
}

func TestHandleImageProxy_RejectsDisallowedHost(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/proxy/image?url="+url.QueryEscape("http://evil.example.com/x.png"), nil)
	rec := httptest.NewRecorder()

	a.handleImageProxy(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
