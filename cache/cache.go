// Package cache provides a TTL result cache fused with request coalescing.
// Concurrent requests for the same key share a single in-flight computation;
// completed values are retained for the key's TTL. A zero TTL coalesces
// without storing, which is how non-cacheable calls still get deduplicated.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

type inflight struct {
	done  chan struct{}
	value any
	err   error
}

// Cache is a coalescing TTL cache keyed by uint64 hashes. Safe for
// concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[uint64]entry
	inflight map[uint64]*inflight
	now      func() time.Time
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		entries:  make(map[uint64]entry),
		inflight: make(map[uint64]*inflight),
		now:      time.Now,
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(key uint64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Put stores value under key for ttl. A non-positive ttl stores nothing.
func (c *Cache) Put(key uint64, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// GetOrCompute returns the cached value for key, or runs compute to produce
// it. While one compute is in flight every other caller for the same key
// blocks and receives the leader's result instead of issuing its own call.
// The hit return reports whether the value came from the cache or another
// caller's in-flight computation rather than a fresh compute.
//
// Failed computations are never stored, so the next request retries.
func (c *Cache) GetOrCompute(ctx context.Context, key uint64, ttl time.Duration, compute func(ctx context.Context) (any, error)) (value any, hit bool, err error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !c.now().After(e.expiresAt) {
		c.mu.Unlock()
		return e.value, true, nil
	}
	if fl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.value, true, fl.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	fl := &inflight{done: make(chan struct{})}
	c.inflight[key] = fl
	c.mu.Unlock()

	fl.value, fl.err = compute(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if fl.err == nil && ttl > 0 {
		c.entries[key] = entry{value: fl.value, expiresAt: c.now().Add(ttl)}
	}
	c.mu.Unlock()
	close(fl.done)

	return fl.value, false, fl.err
}

// Flush drops every stored value. In-flight computations are unaffected.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]entry)
}

// Invalidate drops any stored value for key.
func (c *Cache) Invalidate(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
