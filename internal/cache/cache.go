package cache

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a provider response stays fresh.
const DefaultTTL = 15 * time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Fetches int64 `json:"fetches"`
	Entries int   `json:"entries"`
}

// Cache is a TTL cache with lazy expiry. Expired entries read as misses and
// stay in memory until Sweep removes them.
type Cache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry[V]

	flight singleflight.Group

	hits    *atomic.Int64
	misses  *atomic.Int64
	fetches *atomic.Int64
}

// New creates a Cache. A nil now uses time.Now.
func New[V any](ttl time.Duration, now func() time.Time) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]entry[V]),
		hits:    atomic.NewInt64(0),
		misses:  atomic.NewInt64(0),
		fetches: atomic.NewInt64(0),
	}
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lookup(key)
	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return v, ok
}

// Put stores value under key, replacing any previous entry.
func (c *Cache[V]) Put(key string, value V) {
	e := entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// GetOrFetch returns the cached value for key or calls fetch once per key
// across concurrent callers. Successful results are stored; errors are not.
// The bool result reports whether the value came from the cache.
func (c *Cache[V]) GetOrFetch(key string, fetch func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	res, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry while we waited.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		c.fetches.Inc()
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

// Sweep deletes expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Fetches: c.fetches.Load(),
		Entries: c.Len(),
	}
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !now.Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}
