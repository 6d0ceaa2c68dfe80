package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tbcv/internal/logging"
)

// L2 is the persistent cache tier. It owns only derived data and must be
// safe to wipe at any time, so its writes bypass the RPC guard.

// CacheGet returns the value for key, or nil on miss/expiry.
func (s *Store) CacheGet(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_l2 WHERE key = ?`, key).Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	if expires.Valid && time.Now().After(expires.Time) {
		return nil, nil
	}
	return value, nil
}

// CacheGetEntry returns the value together with its tags and remaining TTL
// (0 = no expiry), so an L1 promotion keeps the entry's lifecycle. Misses and
// expired rows return a nil value.
func (s *Store) CacheGetEntry(ctx context.Context, key string) ([]byte, []string, time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	var tagList string
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT value, tags, expires_at FROM cache_l2 WHERE key = ?`, key).Scan(&value, &tagList, &expires)
	if err == sql.ErrNoRows {
		return nil, nil, 0, nil
	}
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read cache: %w", err)
	}
	var ttl time.Duration
	if expires.Valid {
		ttl = time.Until(expires.Time)
		if ttl <= 0 {
			return nil, nil, 0, nil
		}
	}
	var tags []string
	for _, t := range strings.Split(tagList, ",") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return value, tags, ttl, nil
}

// CacheSet writes key/value with optional TTL and invalidation tags.
func (s *Store) CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expires any
	if ttl > 0 {
		expires = time.Now().Add(ttl).UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_l2 (key, value, tags, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, tags = excluded.tags,
			created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, value, strings.Join(tags, ","), time.Now().UTC(), expires)
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// CacheInvalidateTags removes all entries carrying any of the tags.
func (s *Store) CacheInvalidateTags(ctx context.Context, tags []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, tag := range tags {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM cache_l2 WHERE ',' || tags || ',' LIKE ?`, "%,"+tag+",%")
		if err != nil {
			return total, fmt.Errorf("failed to invalidate tag %s: %w", tag, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	logging.CacheDebug("L2 invalidated %d entries for tags %v", total, tags)
	return total, nil
}

// CacheClear removes all entries, or those under a key namespace prefix.
func (s *Store) CacheClear(ctx context.Context, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	if namespace == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_l2`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_l2 WHERE key LIKE ?`, namespace+":%")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CacheCleanupExpired removes expired entries and returns the count.
func (s *Store) CacheCleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_l2 WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CacheSize returns the entry count of the L2 tier.
func (s *Store) CacheSize(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_l2`).Scan(&n)
	return n, err
}
