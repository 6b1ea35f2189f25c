package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mondominator/opsdec/internal/models"
)

// GetImageCacheEntry looks up a cached thumbnail's metadata by content hash.
func (s *Store) GetImageCacheEntry(ctx context.Context, urlHash string) (*models.ImageCacheEntry, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT url_hash, original_url, relative_path, content_type, file_size, created_at, last_accessed_at
		FROM image_cache_entries WHERE url_hash = ?`, urlHash)

	var e models.ImageCacheEntry
	if err := row.Scan(&e.URLHash, &e.OriginalURL, &e.RelativePath, &e.ContentType, &e.FileSize, &e.CreatedAt, &e.LastAccessedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get image cache entry: %w", err)
	}
	return &e, nil
}

// PutImageCacheEntry records a newly fetched thumbnail.
func (s *Store) PutImageCacheEntry(ctx context.Context, e *models.ImageCacheEntry) error {
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.LastAccessedAt = now

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO image_cache_entries (url_hash, original_url, relative_path, content_type, file_size, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url_hash) DO UPDATE SET last_accessed_at = excluded.last_accessed_at`,
		e.URLHash, e.OriginalURL, e.RelativePath, e.ContentType, e.FileSize, e.CreatedAt, e.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("put image cache entry: %w", err)
	}
	return nil
}

// TouchImageCacheEntry refreshes an entry's last-accessed time on cache hit,
// keeping LRU eviction accurate.
func (s *Store) TouchImageCacheEntry(ctx context.Context, urlHash string) error {
	_, err := s.conn.ExecContext(ctx, "UPDATE image_cache_entries SET last_accessed_at = ? WHERE url_hash = ?", time.Now(), urlHash)
	if err != nil {
		return fmt.Errorf("touch image cache entry: %w", err)
	}
	return nil
}

// DeleteImageCacheEntry removes one entry's row (the caller is responsible
// for deleting the backing file).
func (s *Store) DeleteImageCacheEntry(ctx context.Context, urlHash string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM image_cache_entries WHERE url_hash = ?", urlHash); err != nil {
		return fmt.Errorf("delete image cache entry: %w", err)
	}
	return nil
}

// ListImageCacheEntriesOlderThan returns entries last accessed before
// cutoff, used by JobRunner's TTL sweep.
func (s *Store) ListImageCacheEntriesOlderThan(ctx context.Context, cutoff time.Time) ([]*models.ImageCacheEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT url_hash, original_url, relative_path, content_type, file_size, created_at, last_accessed_at
		FROM image_cache_entries WHERE last_accessed_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale image cache entries: %w", err)
	}
	defer rows.Close()

	var out []*models.ImageCacheEntry
	for rows.Next() {
		var e models.ImageCacheEntry
		if err := rows.Scan(&e.URLHash, &e.OriginalURL, &e.RelativePath, &e.ContentType, &e.FileSize, &e.CreatedAt, &e.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("scan stale image cache entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ImageCacheTotalSize returns the sum of file sizes currently tracked, used
// to enforce the configured size cap with LRU eviction.
func (s *Store) ImageCacheTotalSize(ctx context.Context) (int64, error) {
	var total int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COALESCE(SUM(file_size), 0) FROM image_cache_entries").Scan(&total); err != nil {
		return 0, fmt.Errorf("sum image cache size: %w", err)
	}
	return total, nil
}

// ListImageCacheEntriesByLRU returns entries ordered oldest-accessed-first,
// for evicting down to a target size.
func (s *Store) ListImageCacheEntriesByLRU(ctx context.Context) ([]*models.ImageCacheEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT url_hash, original_url, relative_path, content_type, file_size, created_at, last_accessed_at
		FROM image_cache_entries ORDER BY last_accessed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query image cache entries by LRU: %w", err)
	}
	defer rows.Close()

	var out []*models.ImageCacheEntry
	for rows.Next() {
		var e models.ImageCacheEntry
		if err := rows.Scan(&e.URLHash, &e.OriginalURL, &e.RelativePath, &e.ContentType, &e.FileSize, &e.CreatedAt, &e.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("scan image cache entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ClearImageCache deletes all image cache rows, returning the count removed.
func (s *Store) ClearImageCache(ctx context.Context) (int64, error) {
	result, err := s.conn.ExecContext(ctx, "DELETE FROM image_cache_entries")
	if err != nil {
		return 0, fmt.Errorf("clear image cache: %w", err)
	}
	return result.RowsAffected()
}
