// Package cache memoizes spatial query results until an update touches the
// region they depend on.
package cache

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/octree"
)

const (
	DefaultMaxEntries = 1000
	DefaultTTL        = 100 * time.Millisecond
)

type Options struct {
	// The maximum number of entries. The least recently used entries are
	// evicted past it.
	MaxEntries int

	// The duration after which an entry is no longer served. Zero keeps
	// entries until they are invalidated or evicted.
	TTL time.Duration

	// Returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Invalidations uint64  `json:"invalidations"`
	Evictions     uint64  `json:"evictions"`
	Size          int     `json:"size"`
	HitRate       float64 `json:"hit_rate"`
}

type entry struct {
	results    []octree.EntityID
	touched    geometry.AABB
	insertedAt time.Time
	lastUsed   atomic.Uint64
}

// QueryCache is a TTL and LRU bounded map of query results. Lookups share a
// read lock so concurrent readers never wait on each other. Writes take the
// exclusive lock.
type QueryCache struct {
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	mutex   sync.RWMutex
	entries map[Key]*entry

	tick          atomic.Uint64
	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
	evictions     atomic.Uint64
}

func New(opts Options) *QueryCache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &QueryCache{
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		now:        opts.Now,
		entries:    make(map[Key]*entry),
	}
}

// TryGet returns a copy of the results cached for the key.
func (c *QueryCache) TryGet(k Key) ([]octree.EntityID, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.entries[k]
	if !ok || c.expired(e, c.now()) {
		c.misses.Add(1)
		return nil, false
	}

	e.lastUsed.Store(c.tick.Add(1))
	c.hits.Add(1)
	return slices.Clone(e.results), true
}

// Put caches the results of a query. touched is the region the results
// depend on.
func (c *QueryCache) Put(k Key, results []octree.EntityID, touched geometry.AABB) {
	e := &entry{
		results:    slices.Clone(results),
		touched:    touched,
		insertedAt: c.now(),
	}
	e.lastUsed.Store(c.tick.Add(1))

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, ok := c.entries[k]; !ok && len(c.entries) >= c.maxEntries {
		c.removeExpired(e.insertedAt)
		for len(c.entries) >= c.maxEntries {
			c.evictLeastRecentlyUsed()
		}
	}
	c.entries[k] = e
}

// InvalidateOverlapping removes every entry whose touched region intersects
// region and returns how many were removed.
func (c *QueryCache) InvalidateOverlapping(region geometry.AABB) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.touched.Intersects(region) {
			delete(c.entries, k)
			removed++
		}
	}

	c.invalidations.Add(uint64(removed))
	return removed
}

func (c *QueryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	clear(c.entries)
}

// Cleanup removes expired entries and evicts least recently used ones while
// the cache is over its maximum size.
func (c *QueryCache) Cleanup() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.removeExpired(c.now())
	for len(c.entries) > c.maxEntries {
		c.evictLeastRecentlyUsed()
	}
}

func (c *QueryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.entries)
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Evictions:     c.evictions.Load(),
		Size:          c.Len(),
	}
	if total := s.Hits + s.Misses; total != 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// ResetStats sets the hit and miss counters back to zero.
func (c *QueryCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.invalidations.Store(0)
	c.evictions.Store(0)
}

func (c *QueryCache) expired(e *entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.insertedAt) > c.ttl
}

func (c *QueryCache) removeExpired(now time.Time) {
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			c.evictions.Add(1)
		}
	}
}

func (c *QueryCache) evictLeastRecentlyUsed() {
	var oldestKey Key
	var oldest *entry

	for k, e := range c.entries {
		if oldest == nil || e.lastUsed.Load() < oldest.lastUsed.Load() {
			oldestKey = k
			oldest = e
		}
	}
	if oldest == nil {
		return
	}

	delete(c.entries, oldestKey)
	c.evictions.Add(1)
}
