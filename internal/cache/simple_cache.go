package cache

import (
	"sync"
	"time"
)

// entry stores a cached value and its absolute expiration timestamp.
type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiration
	storedAt  time.Time
}

// SimpleCache is a map-backed cache guarded by a RWMutex. Expired entries are
// dropped lazily or via PurgeExpired; when MaxEntries is reached the oldest
// entry is evicted.
type SimpleCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
	max   int
	now   func() time.Time
}

// Options controls construction of a SimpleCache.
type Options struct {
	// MaxEntries bounds the cache; zero means unbounded.
	MaxEntries int
	// Now overrides the clock.
	Now func() time.Time
}

// NewSimpleCache constructs a new SimpleCache with the given options.
func NewSimpleCache[K comparable, V any](opts Options) *SimpleCache[K, V] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SimpleCache[K, V]{
		items: make(map[K]entry[V]),
		max:   opts.MaxEntries,
		now:   now,
	}
}

// Get implements Cache.Get.
func (c *SimpleCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	e, ok := c.items[key]
	if !ok || c.expired(e, c.now()) {
		return zero, false
	}
	return e.value, true
}

// Set implements Cache.Set.
func (c *SimpleCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now()
	var exp time.Time
	if ttl > 0 {
		exp = ts.Add(ttl)
	}
	if _, exists := c.items[key]; !exists && c.max > 0 && len(c.items) >= c.max {
		c.purgeLocked(ts)
		if len(c.items) >= c.max {
			c.evictOldestLocked()
		}
	}
	c.items[key] = entry[V]{value: value, expiresAt: exp, storedAt: ts}
}

// Delete implements Cache.Delete.
func (c *SimpleCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len implements Cache.Len. It counts only non-expired entries.
func (c *SimpleCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts := c.now()
	count := 0
	for _, e := range c.items {
		if !c.expired(e, ts) {
			count++
		}
	}
	return count
}

// PurgeExpired implements Cache.PurgeExpired.
func (c *SimpleCache[K, V]) PurgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked(c.now())
}

func (c *SimpleCache[K, V]) expired(e entry[V], ts time.Time) bool {
	return !e.expiresAt.IsZero() && ts.After(e.expiresAt)
}

func (c *SimpleCache[K, V]) purgeLocked(ts time.Time) {
	for k, e := range c.items {
		if c.expired(e, ts) {
			delete(c.items, k)
		}
	}
}

func (c *SimpleCache[K, V]) evictOldestLocked() {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	for k, e := range c.items {
		if !found || e.storedAt.Before(oldest) {
			oldestKey, oldest, found = k, e.storedAt, true
		}
	}
	if found {
		delete(c.items, oldestKey)
	}
}

// Ensure SimpleCache implements Cache at compile time.
var _ Cache[string, any] = (*SimpleCache[string, any])(nil)
