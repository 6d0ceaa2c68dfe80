// Package cache provides the two-tier cache: a bounded in-memory LRU with
// per-entry TTL (L1) in front of the persistent store tier (L2).
package cache

import (
	"container/list"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const numShards = 16

type entry struct {
	key     string
	value   []byte
	tags    []string
	expires time.Time // zero means no expiry
}

// lruShard is one lock stripe of the L1 tier.
type lruShard struct {
	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
	cap   int
}

// LRU is a lock-striped LRU cache with per-entry TTL.
type LRU struct {
	shards [numShards]*lruShard
}

// NewLRU creates an LRU with the given total capacity.
func NewLRU(capacity int) *LRU {
	if capacity < numShards {
		capacity = numShards
	}
	l := &LRU{}
	per := capacity / numShards
	for i := range l.shards {
		l.shards[i] = &lruShard{ll: list.New(), items: make(map[string]*list.Element), cap: per}
	}
	return l
}

func (l *LRU) shard(key string) *lruShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%numShards]
}

// Get returns the value for key and whether it was present and unexpired.
func (l *LRU) Get(key string) ([]byte, bool) {
	sh := l.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	el, ok := sh.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		sh.ll.Remove(el)
		delete(sh.items, key)
		return nil, false
	}
	sh.ll.MoveToFront(el)
	return e.value, true
}

// Set stores key/value with optional TTL and tags, evicting the oldest entry
// when the shard is full.
func (l *LRU) Set(key string, value []byte, ttl time.Duration, tags []string) {
	sh := l.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	if el, ok := sh.items[key]; ok {
		e := el.Value.(*entry)
		e.value, e.tags, e.expires = value, tags, expires
		sh.ll.MoveToFront(el)
		return
	}
	el := sh.ll.PushFront(&entry{key: key, value: value, tags: tags, expires: expires})
	sh.items[key] = el
	if sh.ll.Len() > sh.cap {
		oldest := sh.ll.Back()
		if oldest != nil {
			sh.ll.Remove(oldest)
			delete(sh.items, oldest.Value.(*entry).key)
		}
	}
}

// Delete removes key.
func (l *LRU) Delete(key string) {
	sh := l.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if el, ok := sh.items[key]; ok {
		sh.ll.Remove(el)
		delete(sh.items, key)
	}
}

// InvalidateTags removes every entry carrying any of the tags and returns
// the count removed.
func (l *LRU) InvalidateTags(tags []string) int {
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for key, el := range sh.items {
			for _, t := range el.Value.(*entry).tags {
				if tagSet[t] {
					sh.ll.Remove(el)
					delete(sh.items, key)
					removed++
					break
				}
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// ClearPrefix removes entries whose key starts with prefix; empty prefix
// clears everything. Returns the count removed.
func (l *LRU) ClearPrefix(prefix string) int {
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for key, el := range sh.items {
			if prefix == "" || strings.HasPrefix(key, prefix) {
				sh.ll.Remove(el)
				delete(sh.items, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// CleanupExpired removes expired entries and returns the count.
func (l *LRU) CleanupExpired() int {
	now := time.Now()
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for key, el := range sh.items {
			e := el.Value.(*entry)
			if !e.expires.IsZero() && now.After(e.expires) {
				sh.ll.Remove(el)
				delete(sh.items, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the current entry count.
func (l *LRU) Len() int {
	n := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		n += sh.ll.Len()
		sh.mu.Unlock()
	}
	return n
}
