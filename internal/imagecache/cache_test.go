package imagecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/store"
)

func setupTestCache(t *testing.T) (*Cache, *store.Store) {
	t.Helper()
	st, err := store.Open(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	c, err := New(st, config.ImageCacheConfig{
		Directory:      dir,
		TTL:            time.Hour,
		MaxSizeBytes:   1 << 20,
		AllowedSchemes: []string{"http", "https"},
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, st
}

// fetchAndPut mimics what the image proxy handler does on a cache miss:
// fetch the upstream bytes, then store them.
func fetchAndPut(t *testing.T, c *Cache, ctx context.Context, sourceURL string) (string, string) {
	t.Helper()
	data, contentType, err := c.Fetch(ctx, sourceURL, "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	path, err := c.Put(ctx, sourceURL, data, contentType)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return path, contentType
}

func TestCache_GetMissesThenHitsAfterPut(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake-png-bytes"))
	}))
	defer srv.Close()

	c, _ := setupTestCache(t)
	ctx := context.Background()
	url := srv.URL + "/thumb.png"

	_, _, status1, err := c.Get(ctx, url)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if status1 != StatusMiss {
		t.Errorf("status = %q, want MISS before anything is cached", status1)
	}

	path1, contentType := fetchAndPut(t, c, ctx, url)
	if contentType != "image/png" {
		t.Errorf("content type = %q, want image/png", contentType)
	}
	if got := path1[len(path1)-4:]; got != ".png" {
		t.Errorf("cached path %q does not end in .png", path1)
	}

	path2, ct2, status2, err := c.Get(ctx, url)
	if err != nil {
		t.Fatalf("Get() second call error = %v", err)
	}
	if path1 != path2 {
		t.Errorf("path changed between calls: %q vs %q", path1, path2)
	}
	if ct2 != "image/png" {
		t.Errorf("content type = %q, want image/png", ct2)
	}
	if status2 != StatusHit {
		t.Errorf("status = %q, want HIT after Put", status2)
	}
	if hits != 1 {
		t.Errorf("upstream was fetched %d times, want 1", hits)
	}
}

func TestCache_GetRejectsDisallowedScheme(t *testing.T) {
	c, _ := setupTestCache(t)
	_, _, _, err := c.Get(context.Background(), "file:///etc/passwd")
	if err != ErrSchemeNotAllowed {
		t.Fatalf("Get() error = %v, want ErrSchemeNotAllowed", err)
	}
}

func TestCache_PutUsesContentTypeExtension(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	tests := []struct {
		contentType string
		wantExt     string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"image/webp", ".webp"},
		{"image/gif", ".gif"},
		{"image/svg+xml", ".svg"},
		{"image/avif", ".avif"},
		{"application/octet-stream", ".bin"},
	}
	for _, tt := range tests {
		path, err := c.Put(ctx, "http://example.com/"+tt.contentType, []byte("data"), tt.contentType)
		if err != nil {
			t.Fatalf("Put(%q) error = %v", tt.contentType, err)
		}
		if got := path[len(path)-len(tt.wantExt):]; got != tt.wantExt {
			t.Errorf("Put(%q) path = %q, want extension %q", tt.contentType, path, tt.wantExt)
		}
	}
}

func TestCache_EvictByAgeRemovesStaleEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c, _ := setupTestCache(t)
	ctx := context.Background()

	fetchAndPut(t, c, ctx, srv.URL+"/a.png")

	removedByAge, removedByLRU, err := c.Evict(ctx, -time.Second, 0)
	if err != nil {
		t.Fatalf("Evict() error = %v", err)
	}
	if removedByAge != 1 {
		t.Errorf("removedByAge = %d, want 1", removedByAge)
	}
	if removedByLRU != 0 {
		t.Errorf("removedByLRU = %d, want 0", removedByLRU)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.EntryCount != 0 {
		t.Errorf("EntryCount = %d, want 0 after age eviction", stats.EntryCount)
	}
}

func TestCache_EvictByLRURemovesOldestUntilUnderCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 10))
	}))
	defer srv.Close()

	c, _ := setupTestCache(t)
	ctx := context.Background()

	fetchAndPut(t, c, ctx, srv.URL+"/a.png")
	fetchAndPut(t, c, ctx, srv.URL+"/b.png")
	fetchAndPut(t, c, ctx, srv.URL+"/c.png")

	removedByAge, removedByLRU, err := c.Evict(ctx, 0, 15)
	if err != nil {
		t.Fatalf("Evict() error = %v", err)
	}
	if removedByAge != 0 {
		t.Errorf("removedByAge = %d, want 0", removedByAge)
	}
	if removedByLRU != 2 {
		t.Errorf("removedByLRU = %d, want 2", removedByLRU)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.EntryCount != 1 {
		t.Errorf("EntryCount = %d, want 1 after LRU eviction", stats.EntryCount)
	}
}

func TestCache_ClearAllRemovesEverything(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c, _ := setupTestCache(t)
	ctx := context.Background()
	fetchAndPut(t, c, ctx, srv.URL+"/a.png")

	count, err := c.ClearAll(ctx)
	if err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if count != 1 {
		t.Errorf("ClearAll() removed %d, want 1", count)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.EntryCount != 0 {
		t.Errorf("EntryCount = %d, want 0 after ClearAll", stats.EntryCount)
	}
}
