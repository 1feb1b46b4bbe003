// Package cache memoizes expensive, time-sensitive probe results under a
// per-instance freshness window.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const defaultMaxKeys = 1000

// Producer computes a value on a cache miss. It may be slow and may fail.
type Producer[T any] func(ctx context.Context) (T, error)

// Config holds configuration for a single cache instance
type Config struct {
	Name        string
	TTL         time.Duration // default lifetime of an entry
	CheckPeriod time.Duration // janitor interval; 0 disables background purging
	MaxKeys     int           // soft cap on entry count; <= 0 means 1000
	Clock       func() time.Time
}

type entry[T any] struct {
	value      T
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry[T]) live(now time.Time) bool {
	return now.Sub(e.insertedAt) < e.ttl
}

// Stats holds cache counters
type Stats struct {
	Name      string `json:"name"`
	Keys      int    `json:"keys"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache is a key/value memoizer with lazy TTL expiry. Concurrent misses on
// the same key share a single producer invocation.
type Cache[T any] struct {
	name        string
	ttl         time.Duration
	checkPeriod time.Duration
	maxKeys     int
	now         func() time.Time

	mu        sync.Mutex
	entries   map[string]entry[T]
	hits      uint64
	misses    uint64
	evictions uint64

	group singleflight.Group

	running   bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a cache from cfg.
func New[T any](cfg Config) *Cache[T] {
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		name:        cfg.Name,
		ttl:         cfg.TTL,
		checkPeriod: cfg.CheckPeriod,
		maxKeys:     maxKeys,
		now:         now,
		entries:     make(map[string]entry[T]),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Name returns the configured cache name.
func (c *Cache[T]) Name() string {
	return c.name
}

// Get returns the live value for key, or invokes producer, stores its result
// under ttl (or the default TTL) and returns it. Producer errors are returned
// as-is and nothing is cached.
//
// Concurrent misses share one producer call. The producer runs detached from
// the caller's cancellation, so one caller giving up never fails the others;
// each caller still returns as soon as its own ctx is done.
func (c *Cache[T]) Get(ctx context.Context, key string, producer Producer[T], ttl ...time.Duration) (T, error) {
	var zero T
	if value, ok := c.lookup(key, true); ok {
		return value, nil
	}

	fillCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (result interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cache %s: producer panic: %v", c.name, r)
			}
		}()
		// Another flight may have filled the entry between lookup and Do.
		if value, ok := c.lookup(key, false); ok {
			return value, nil
		}
		value, err := producer(fillCtx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, ttl...)
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			log.Trace().Str("cache", c.name).Str("key", key).Msg("Shared in-flight cache fill")
		}
		value, _ := res.Val.(T)
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Peek returns the live value for key without invoking a producer.
func (c *Cache[T]) Peek(key string) (T, bool) {
	return c.lookup(key, false)
}

func (c *Cache[T]) lookup(key string, record bool) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && !e.live(c.now()) {
		delete(c.entries, key)
		ok = false
	}
	if record {
		if ok {
			c.hits++
			cacheHits.WithLabelValues(c.name).Inc()
		} else {
			c.misses++
			cacheMisses.WithLabelValues(c.name).Inc()
		}
	}
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. A non-positive or absent ttl uses the default.
func (c *Cache[T]) Set(key string, value T, ttl ...time.Duration) {
	lifetime := c.ttl
	if len(ttl) > 0 && ttl[0] > 0 {
		lifetime = ttl[0]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxKeys {
		c.purgeExpiredLocked(now)
		for len(c.entries) >= c.maxKeys {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = entry[T]{value: value, insertedAt: now, ttl: lifetime}
}

// Delete removes key and reports whether it was present.
func (c *Cache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Flush removes every entry.
func (c *Cache[T]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[T])
}

// Len returns the number of stored entries, including ones not yet purged.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a copy of the cache counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Name:      c.name,
		Keys:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (c *Cache[T]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked(c.now())
}

func (c *Cache[T]) purgeExpiredLocked(now time.Time) int {
	removed := 0
	for key, e := range c.entries {
		if !e.live(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache[T]) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, e := range c.entries {
		if !found || e.insertedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, e.insertedAt, true
		}
	}
	if !found {
		return
	}
	delete(c.entries, oldestKey)
	c.evictions++
	cacheEvictions.WithLabelValues(c.name).Inc()
}

// Start launches the background janitor when a check period is configured.
// Expiry stays lazy either way; the janitor only bounds memory.
func (c *Cache[T]) Start(ctx context.Context) {
	if c.checkPeriod <= 0 {
		return
	}
	c.startOnce.Do(func() {
		c.mu.Lock()
		c.running = true
		c.mu.Unlock()
		go c.janitor(ctx)
	})
}

func (c *Cache[T]) janitor(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.checkPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if removed := c.PurgeExpired(); removed > 0 {
				log.Debug().Str("cache", c.name).Int("removed", removed).Msg("Purged expired cache entries")
			}
		}
	}
}

// Close stops the janitor if it was started.
func (c *Cache[T]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})

	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		<-c.doneCh
	}
}
