package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"pulseguard/internal/metrics"
)

// Kind names the subject kind of a cached fact.
const (
	KindPrice      = "price"
	KindReputation = "reputation"
	KindHistory    = "history"
)

type entry struct {
	value    interface{}
	inserted time.Time
}

// ScoreCache is a TTL-bounded cache for externally-sourced facts, keyed per
// (subject-kind, subject-id). Expiry is lazy: a read past the TTL is a miss
// and the stale entry is dropped. Safe for concurrent use.
type ScoreCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time

	hits    int64
	misses  int64
	expired int64
}

// NewScoreCache creates a cache with the given TTL. A non-positive TTL
// defaults to five minutes.
func NewScoreCache(ttl time.Duration) *ScoreCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ScoreCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func cacheKey(kind, key string) string {
	return kind + ":" + key
}

// Get returns the cached value for (kind, key), or ok=false on miss or
// expiry.
func (c *ScoreCache) Get(kind, key string) (interface{}, bool) {
	k := cacheKey(kind, key)

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
		return nil, false
	}

	if c.now().Sub(e.inserted) >= c.ttl {
		c.mu.Lock()
		// Recheck under the write lock; another writer may have refreshed it.
		if cur, still := c.entries[k]; still && c.now().Sub(cur.inserted) >= c.ttl {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		atomic.AddInt64(&c.expired, 1)
		metrics.CacheLookups.WithLabelValues(kind, "expired").Inc()
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
	return e.value, true
}

// Put inserts or refreshes a value. Last write wins on racing writers.
func (c *ScoreCache) Put(kind, key string, value interface{}) {
	c.mu.Lock()
	c.entries[cacheKey(kind, key)] = entry{value: value, inserted: c.now()}
	c.mu.Unlock()
}

// Len returns the number of resident entries, including not-yet-evicted
// stale ones.
func (c *ScoreCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Expired int64 `json:"expired"`
	Entries int   `json:"entries"`
}

// Snapshot returns current cache statistics.
func (c *ScoreCache) Snapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Expired: atomic.LoadInt64(&c.expired),
		Entries: len(c.entries),
	}
}
