// Package cache provides a small time-boxed key/value cache.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/yodabot/support-desk/pkg/metrics"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache maps keys to values that expire a fixed time after being stored.
// A non-positive ttl keeps entries until they are overwritten or deleted.
type Cache[K comparable, V any] struct {
	name  string
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[K]entry[V]
}

// New creates a cache. name labels its metrics.
func New[K comparable, V any](name string, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		name:  name,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[K]entry[V]),
	}
}

// WithClock replaces the time source.
func (c *Cache[K, V]) WithClock(now func() time.Time) *Cache[K, V] {
	c.now = now
	return c
}

// Get returns the live value for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if ok && c.expired(e) {
		c.mu.Lock()
		if cur, still := c.items[key]; still && c.expired(cur) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		ok = false
	}

	metrics.RecordCache(c.name, ok)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, restarting its expiry.
func (c *Cache[K, V]) Set(key K, value V) {
	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.items[key] = e
	c.mu.Unlock()
}

// Delete drops key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	c.items = make(map[K]entry[V])
	c.mu.Unlock()
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Concurrent misses for one key may each call load.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

func (c *Cache[K, V]) expired(e entry[V]) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}
