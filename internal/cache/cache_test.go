package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeL2 is an in-memory L2 tier for tests.
type fakeL2 struct {
	mu      sync.Mutex
	entries map[string]*fakeEntry
}

type fakeEntry struct {
	value   []byte
	tags    []string
	expires time.Time // zero means no expiry
}

func newFakeL2() *fakeL2 {
	return &fakeL2{entries: make(map[string]*fakeEntry)}
}

func (f *fakeL2) CacheGetEntry(ctx context.Context, key string) ([]byte, []string, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok {
		return nil, nil, 0, nil
	}
	var ttl time.Duration
	if !e.expires.IsZero() {
		ttl = time.Until(e.expires)
		if ttl <= 0 {
			return nil, nil, 0, nil
		}
	}
	return e.value, e.tags, ttl, nil
}

func (f *fakeL2) CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEntry{value: value, tags: tags}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	f.entries[key] = e
	return nil
}

func (f *fakeL2) CacheInvalidateTags(ctx context.Context, tags []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for key, e := range f.entries {
		for _, t := range e.tags {
			for _, want := range tags {
				if t == want {
					delete(f.entries, key)
					removed++
				}
			}
		}
	}
	return removed, nil
}

func (f *fakeL2) CacheClear(ctx context.Context, namespace string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.entries)
	f.entries = make(map[string]*fakeEntry)
	return n, nil
}

func (f *fakeL2) CacheCleanupExpired(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeL2) CacheSize(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

func TestCacheSetGet(t *testing.T) {
	c := New(64, nil)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), 0, nil)
	got, ok := c.Get(ctx, "k1")
	if !ok || string(got) != "v1" {
		t.Fatalf("Get(k1) = %q, %v; want v1, true", got, ok)
	}
	if _, ok := c.Get(ctx, "absent"); ok {
		t.Fatal("Get(absent) = true, want false")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(64, nil)
	ctx := context.Background()

	c.Set(ctx, "short", []byte("v"), 10*time.Millisecond, nil)
	if _, ok := c.Get(ctx, "short"); !ok {
		t.Fatal("entry expired before its TTL")
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Get(ctx, "short"); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestCacheL2Promotion(t *testing.T) {
	l2 := newFakeL2()
	c := New(64, l2)
	ctx := context.Background()

	// Seed L2 directly; the first Get must promote into L1.
	if err := l2.CacheSet(ctx, "deep", []byte("stored"), 0, nil); err != nil {
		t.Fatalf("CacheSet() error = %v", err)
	}
	got, ok := c.Get(ctx, "deep")
	if !ok || string(got) != "stored" {
		t.Fatalf("Get(deep) = %q, %v; want stored, true", got, ok)
	}

	// Remove from L2; the promoted copy must still serve.
	l2.mu.Lock()
	delete(l2.entries, "deep")
	l2.mu.Unlock()
	if _, ok := c.Get(ctx, "deep"); !ok {
		t.Fatal("promoted entry missing from L1")
	}
}

func TestCachePromotionKeepsTags(t *testing.T) {
	l2 := newFakeL2()
	c := New(64, l2)
	ctx := context.Background()

	if err := l2.CacheSet(ctx, "v:r:h", []byte("report"), time.Hour, []string{TagConfigChange}); err != nil {
		t.Fatalf("CacheSet() error = %v", err)
	}
	if _, ok := c.Get(ctx, "v:r:h"); !ok {
		t.Fatal("L2 entry not served")
	}

	// Invalidation must reach the promoted L1 copy too.
	c.Invalidate(ctx, []string{TagConfigChange})
	if _, ok := c.Get(ctx, "v:r:h"); ok {
		t.Fatal("promoted entry survived tag invalidation")
	}
}

func TestCachePromotionKeepsTTL(t *testing.T) {
	l2 := newFakeL2()
	c := New(64, l2)
	ctx := context.Background()

	if err := l2.CacheSet(ctx, "short", []byte("v"), 10*time.Millisecond, nil); err != nil {
		t.Fatalf("CacheSet() error = %v", err)
	}
	if _, ok := c.Get(ctx, "short"); !ok {
		t.Fatal("L2 entry not served before expiry")
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Get(ctx, "short"); ok {
		t.Fatal("promoted entry survived past the L2 row's TTL")
	}
}

func TestCacheInvalidateTags(t *testing.T) {
	c := New(64, nil)
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), 0, []string{TagConfigChange})
	c.Set(ctx, "b", []byte("2"), 0, []string{TagContent})
	c.Set(ctx, "c", []byte("3"), 0, nil)

	if n := c.Invalidate(ctx, []string{TagConfigChange}); n != 1 {
		t.Fatalf("Invalidate() = %d, want 1", n)
	}
	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("tagged entry survived invalidation")
	}
	if _, ok := c.Get(ctx, "b"); !ok {
		t.Fatal("unrelated entry was invalidated")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Fatal("untagged entry was invalidated")
	}
}

func TestCacheStats(t *testing.T) {
	c := New(64, nil)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0, nil)
	c.Get(ctx, "k")      // hit
	c.Get(ctx, "other")  // miss
	c.Get(ctx, "other2") // miss

	st := c.Stats(ctx)
	if st.Hits != 1 || st.Misses != 2 {
		t.Fatalf("Stats() hits=%d misses=%d, want 1/2", st.Hits, st.Misses)
	}
	wantRate := 1.0 / 3.0
	if st.HitRate < wantRate-0.01 || st.HitRate > wantRate+0.01 {
		t.Fatalf("Stats() hit rate = %f, want ~%f", st.HitRate, wantRate)
	}
}

func TestLRUEviction(t *testing.T) {
	// Minimum capacity spreads one slot per shard; filling a single shard's
	// slot twice must evict the older entry.
	l := NewLRU(numShards)
	sh := l.shard("x")

	var keys []string
	for i := 0; len(keys) < 2; i++ {
		k := fmt.Sprintf("key-%d", i)
		if l.shard(k) == sh {
			keys = append(keys, k)
		}
	}

	l.Set(keys[0], []byte("old"), 0, nil)
	l.Set(keys[1], []byte("new"), 0, nil)
	if _, ok := l.Get(keys[0]); ok {
		t.Fatal("oldest entry survived eviction")
	}
	if _, ok := l.Get(keys[1]); !ok {
		t.Fatal("newest entry was evicted")
	}
}

func TestLRUClearPrefix(t *testing.T) {
	l := NewLRU(64)
	l.Set("v:one", []byte("1"), 0, nil)
	l.Set("v:two", []byte("2"), 0, nil)
	l.Set("llm:three", []byte("3"), 0, nil)

	if n := l.ClearPrefix("v:"); n != 2 {
		t.Fatalf("ClearPrefix(v:) = %d, want 2", n)
	}
	if _, ok := l.Get("llm:three"); !ok {
		t.Fatal("entry outside prefix was cleared")
	}
}
