// Package cache is a TTL result cache that collapses concurrent misses for the
// same key into one computation.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Result labels passed to the observer
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultShared = "shared"
)

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Size      int   `json:"size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Shared    int64 `json:"shared"`
	Evictions int64 `json:"evictions"`
}

type entry[V any] struct {
	value   V
	created time.Time
}

type options struct {
	now      func() time.Time
	onLookup func(result string)
	onEvict  func(n int)
	logger   *slog.Logger
}

// Option configures a Cache
type Option func(*options)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithObserver receives every lookup result and eviction count, e.g. for metrics
func WithObserver(onLookup func(result string), onEvict func(n int)) Option {
	return func(o *options) {
		o.onLookup = onLookup
		o.onEvict = onEvict
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Cache maps keys to values for a fixed TTL. An entry is fresh while
// now < created+ttl. Errors are never cached.
type Cache[V any] struct {
	ttl  time.Duration
	opts options

	mu      sync.RWMutex
	entries map[string]entry[V]
	group   singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	shared    atomic.Int64
	evictions atomic.Int64
}

func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		ttl:     ttl,
		opts:    o,
		entries: make(map[string]entry[V]),
	}
}

// TTL returns the configured entry lifetime
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// Get returns a fresh value for key
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.fresh(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Stale returns the value for key even when it has expired but was not swept yet
func (c *Cache[V]) Stale(key string) (V, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.value, e.created, ok
}

// Set stores value under key, replacing any previous entry
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, created: c.opts.now()}
	c.mu.Unlock()
}

// GetOrCompute returns the cached value for key or computes it with fn.
// Concurrent callers missing on the same key share one fn call. The computation
// is detached from the caller's cancellation so a caller giving up does not fail
// the others; the caller still returns as soon as ctx is done.
// The bool result reports whether the value came from cache or another caller.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, bool, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		c.record(ResultHit)
		return v, true, nil
	}

	computed := false
	ch := c.group.DoChan(key, func() (any, error) {
		// another flight may have stored the key between our Get and Do
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		computed = true
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, false, r.Err
		}
		if computed {
			c.record(ResultMiss)
			return r.Val.(V), false, nil
		}
		c.record(ResultShared)
		return r.Val.(V), true, nil
	}
}

// Invalidate drops key
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Sweep removes expired entries and returns how many were removed
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if !c.fresh(e) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		if c.opts.onEvict != nil {
			c.opts.onEvict(removed)
		}
	}
	return removed
}

// Run sweeps on every interval tick until ctx is done
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.opts.logger.Debug("Cache sweep", "evicted", n, "size", c.Len())
			}
		}
	}
}

// Len returns the number of stored entries, expired ones included
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) Stats() Stats {
	return Stats{
		Size:      c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Shared:    c.shared.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *Cache[V]) fresh(e entry[V]) bool {
	return c.opts.now().Before(e.created.Add(c.ttl))
}

func (c *Cache[V]) record(result string) {
	switch result {
	case ResultHit:
		c.hits.Add(1)
	case ResultMiss:
		c.misses.Add(1)
	case ResultShared:
		c.shared.Add(1)
	}
	if c.opts.onLookup != nil {
		c.opts.onLookup(result)
	}
}
