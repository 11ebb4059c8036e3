// Package cache provides the namespaced TTL cache fronting the memory
// engine's read path. Entries are derived data: losing one never loses
// memory, only latency.
package cache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const shardCount = 16

// evictFraction is the share of a full cache removed in one batch so
// overflow handling amortizes instead of running per insert.
const evictFraction = 0.10

type entry struct {
	value      any
	namespace  string
	createdAt  time.Time
	ttl        time.Duration
	lastAccess int64 // unix nanos, updated atomically on Get
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// Cache is a thread-safe, bounded, namespaced TTL cache. Keys are
// partitioned into shards with independent locks so concurrent
// activity on unrelated users never serializes on one global mutex.
// On overflow the least-recently-accessed ~10% of entries is evicted
// in one batch.
type Cache struct {
	maxSize int
	count   atomic.Int64
	shards  [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Stats summarizes cache occupancy.
type Stats struct {
	TotalEntries   int            `json:"total_entries"`
	ExpiredEntries int            `json:"expired_entries"`
	Namespaces     map[string]int `json:"namespaces"`
}

// New creates a cache bounded to maxSize entries.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	c := &Cache{maxSize: maxSize}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*entry)
	}
	return c
}

// Get returns the live value stored under (namespace, key). Expired
// entries read as absent and are dropped lazily.
func (c *Cache) Get(key, namespace string) (any, bool) {
	ck := compose(namespace, key)
	s := c.shardFor(ck)

	s.mu.Lock()
	e, ok := s.entries[ck]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(s.entries, ck)
		c.count.Add(-1)
		s.mu.Unlock()
		return nil, false
	}
	atomic.StoreInt64(&e.lastAccess, time.Now().UnixNano())
	v := e.value
	s.mu.Unlock()
	return v, true
}

// Set stores value under (namespace, key) for ttl. Overwriting an
// existing key refreshes its TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration, namespace string) {
	if ttl <= 0 {
		return
	}
	if int(c.count.Load()) >= c.maxSize {
		c.evictBatch()
	}

	ck := compose(namespace, key)
	s := c.shardFor(ck)
	now := time.Now()

	s.mu.Lock()
	if _, exists := s.entries[ck]; !exists {
		c.count.Add(1)
	}
	s.entries[ck] = &entry{
		value:      value,
		namespace:  namespace,
		createdAt:  now,
		ttl:        ttl,
		lastAccess: now.UnixNano(),
	}
	s.mu.Unlock()
}

// Invalidate removes entries and returns how many were dropped.
// With both key and namespace set it drops that one entry; with only a
// namespace it drops that namespace's keys and never touches others;
// with neither it drops everything.
func (c *Cache) Invalidate(key, namespace string) int {
	if key != "" {
		ck := compose(namespace, key)
		s := c.shardFor(ck)
		s.mu.Lock()
		_, ok := s.entries[ck]
		if ok {
			delete(s.entries, ck)
			c.count.Add(-1)
		}
		s.mu.Unlock()
		if ok {
			return 1
		}
		return 0
	}

	removed := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for ck, e := range s.entries {
			if namespace == "" || e.namespace == namespace {
				delete(s.entries, ck)
				removed++
			}
		}
		s.mu.Unlock()
	}
	c.count.Add(int64(-removed))
	return removed
}

// PurgeExpired drops every expired entry, returning the count. Called
// periodically by the sweeper.
func (c *Cache) PurgeExpired() int {
	now := time.Now()
	removed := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for ck, e := range s.entries {
			if e.expired(now) {
				delete(s.entries, ck)
				removed++
			}
		}
		s.mu.Unlock()
	}
	c.count.Add(int64(-removed))
	return removed
}

// Len reports the current entry count, expired entries included.
func (c *Cache) Len() int {
	return int(c.count.Load())
}

// GetStats counts entries per namespace plus how many are already past
// their TTL but not yet collected.
func (c *Cache) GetStats() Stats {
	now := time.Now()
	st := Stats{Namespaces: make(map[string]int)}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for _, e := range s.entries {
			st.TotalEntries++
			st.Namespaces[e.namespace]++
			if e.expired(now) {
				st.ExpiredEntries++
			}
		}
		s.mu.Unlock()
	}
	return st
}

// evictBatch removes the least-recently-accessed ~10% of entries.
// Approximate LRU: candidates are ranked by their atomically tracked
// last access time across all shards.
func (c *Cache) evictBatch() {
	target := int(float64(c.maxSize) * evictFraction)
	if target < 1 {
		target = 1
	}

	type candidate struct {
		shard      int
		key        string
		lastAccess int64
	}
	var candidates []candidate
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for ck, e := range s.entries {
			candidates = append(candidates, candidate{
				shard:      i,
				key:        ck,
				lastAccess: atomic.LoadInt64(&e.lastAccess),
			})
		}
		s.mu.Unlock()
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess < candidates[j].lastAccess
	})
	if len(candidates) > target {
		candidates = candidates[:target]
	}

	removed := 0
	for _, cand := range candidates {
		s := &c.shards[cand.shard]
		s.mu.Lock()
		if _, ok := s.entries[cand.key]; ok {
			delete(s.entries, cand.key)
			removed++
		}
		s.mu.Unlock()
	}
	c.count.Add(int64(-removed))
}

func (c *Cache) shardFor(composedKey string) *shard {
	var h uint32 = 2166136261
	for i := 0; i < len(composedKey); i++ {
		h ^= uint32(composedKey[i])
		h *= 16777619
	}
	return &c.shards[h%shardCount]
}

// compose joins namespace and key with a separator no caller can
// produce, so "a"+"bc" and "ab"+"c" never collide.
func compose(namespace, key string) string {
	var b strings.Builder
	b.Grow(len(namespace) + len(key) + 1)
	b.WriteString(namespace)
	b.WriteByte(0)
	b.WriteString(key)
	return b.String()
}
