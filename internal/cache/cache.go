package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"tbcv/internal/logging"
)

// Key namespaces. The full key discipline:
//
//	v:{rule_hash}:{content_hash}   validation results
//	llm:{prompt_hash}              LLM responses (24h TTL)
//	truth:{family}                 truth data snapshots
const (
	NamespaceValidation = "v"
	NamespaceLLM        = "llm"
	NamespaceTruth      = "truth"
)

// ValidationKey builds a validation-result cache key.
func ValidationKey(ruleHash, contentHash string) string {
	return fmt.Sprintf("%s:%s:%s", NamespaceValidation, ruleHash, contentHash)
}

// LLMKey builds an LLM-response cache key.
func LLMKey(promptHash string) string {
	return fmt.Sprintf("%s:%s", NamespaceLLM, promptHash)
}

// TruthKey builds a truth-data cache key.
func TruthKey(family string) string {
	return fmt.Sprintf("%s:%s", NamespaceTruth, family)
}

// Tags used for invalidation.
const (
	TagConfigChange = "config_change"
	TagContent      = "content_invalidate"
)

// L2 is the persistent tier interface, implemented by the store.
type L2 interface {
	// CacheGetEntry returns the value with its tags and remaining TTL
	// (0 = no expiry); nil value means miss.
	CacheGetEntry(ctx context.Context, key string) ([]byte, []string, time.Duration, error)
	CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	CacheInvalidateTags(ctx context.Context, tags []string) (int, error)
	CacheClear(ctx context.Context, namespace string) (int, error)
	CacheCleanupExpired(ctx context.Context) (int, error)
	CacheSize(ctx context.Context) (int, error)
}

// Stats is the cache hit/miss summary.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	L1Size  int     `json:"l1_size"`
	L2Size  int     `json:"l2_size"`
}

// Cache is the two-tier cache manager. L1 is synchronous; L2 writes are
// async best-effort.
type Cache struct {
	l1     *LRU
	l2     L2
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache over the given L1 capacity and L2 tier. l2 may be nil
// (memory-only mode, used in tests).
func New(l1Capacity int, l2 L2) *Cache {
	return &Cache{l1: NewLRU(l1Capacity), l2: l2}
}

// Get returns the cached value, promoting L2 hits into L1.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.l1.Get(key); ok {
		c.hits.Add(1)
		return v, true
	}
	if c.l2 != nil {
		// Promote with the entry's own tags and remaining TTL so the L1 copy
		// stays invalidatable and expires with the L2 row.
		if v, tags, ttl, err := c.l2.CacheGetEntry(ctx, key); err == nil && v != nil {
			c.l1.Set(key, v, ttl, tags)
			c.hits.Add(1)
			return v, true
		}
	}
	c.misses.Add(1)
	return nil, false
}

// Set writes both tiers: L1 synchronously, L2 async best-effort.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) {
	c.l1.Set(key, value, ttl, tags)
	if c.l2 != nil {
		go func() {
			if err := c.l2.CacheSet(context.WithoutCancel(ctx), key, value, ttl, tags); err != nil {
				logging.CacheDebug("L2 write failed for %s: %v", key, err)
			}
		}()
	}
}

// Invalidate removes all entries carrying any of the tags from both tiers.
func (c *Cache) Invalidate(ctx context.Context, tags []string) int {
	n := c.l1.InvalidateTags(tags)
	if c.l2 != nil {
		if m, err := c.l2.CacheInvalidateTags(ctx, tags); err == nil {
			n += m
		}
	}
	logging.Cache("Invalidated %d entries for tags %v", n, tags)
	return n
}

// Clear wipes a namespace (or everything when empty) from both tiers.
func (c *Cache) Clear(ctx context.Context, namespace string) int {
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	n := c.l1.ClearPrefix(prefix)
	if c.l2 != nil {
		if m, err := c.l2.CacheClear(ctx, namespace); err == nil {
			n += m
		}
	}
	return n
}

// CleanupExpired removes expired entries from both tiers.
func (c *Cache) CleanupExpired(ctx context.Context) (l1Cleaned, l2Cleaned int) {
	l1Cleaned = c.l1.CleanupExpired()
	if c.l2 != nil {
		l2Cleaned, _ = c.l2.CacheCleanupExpired(ctx)
	}
	return l1Cleaned, l2Cleaned
}

// Stats returns hit/miss counters and sizes.
func (c *Cache) Stats(ctx context.Context) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	st := Stats{Hits: hits, Misses: misses, L1Size: c.l1.Len()}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	if c.l2 != nil {
		st.L2Size, _ = c.l2.CacheSize(ctx)
	}
	return st
}
