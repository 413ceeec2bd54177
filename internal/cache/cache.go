// Package cache provides a SQLite-backed result cache for batch engines.
// Entries are keyed by content hash within a namespace so summaries and
// embeddings of the same chunk never collide.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mfarouk/repochat/internal/db"
)

// Store persists JSON-encoded values of type R in the cache_entries table.
// It implements the batch engine's cache contract.
type Store[R any] struct {
	db        *db.DB
	namespace string
}

// New creates a cache store for the given namespace.
func New[R any](d *db.DB, namespace string) *Store[R] {
	return &Store[R]{db: d, namespace: namespace}
}

// Get looks up a cached value by content hash. Expired entries are treated
// as misses; the reaper removes them later.
func (s *Store[R]) Get(ctx context.Context, key string) (R, bool, error) {
	var zero R
	var raw string
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE namespace = ? AND content_hash = ?`,
		s.namespace, key,
	).Scan(&raw, &expiresAt)
	if err == sql.ErrNoRows {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("cache get: %w", err)
	}

	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return zero, false, nil
	}

	var value R
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return zero, false, fmt.Errorf("cache decode: %w", err)
	}
	return value, true, nil
}

// Set stores a value by content hash. A zero ttl means the entry never
// expires.
func (s *Store[R]) Set(ctx context.Context, key string, value R, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	var expiresAt any
	if ttl != 0 {
		expiresAt = time.Now().Add(ttl).UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, content_hash, value, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, content_hash) DO UPDATE SET value=excluded.value,
		 created_at=datetime('now'), expires_at=excluded.expires_at`,
		s.namespace, key, string(raw), expiresAt)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Purge deletes expired entries across all namespaces and returns the number
// removed.
func Purge(ctx context.Context, d *db.DB) (int64, error) {
	res, err := d.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at < ?`,
		time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}
