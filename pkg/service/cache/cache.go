// Package cache deduplicates repeated expensive inference calls. Keys are
// SHA-256 hashes of the input text, so the cache never holds raw input.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL     = 300 * time.Second
	DefaultMaxSize = 100
)

type entry struct {
	value    any
	expireAt time.Time
}

// Cache is an in-memory TTL cache with a capacity bound. Eviction is
// expiry-order based: when full it first purges expired entries, then drops
// the entry with the earliest expireAt. Because entries are written once
// with a fixed TTL this approximates least-recently-written, not true LRU;
// reads do not refresh an entry's position.
//
// The mutex guards only the map bookkeeping and is never held across an
// external call.
type Cache struct {
	name    string
	maxSize int
	ttl     time.Duration

	mu    sync.Mutex
	store map[string]entry
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a named cache. Non-positive parameters fall back to defaults.
func New(name string, maxSize int, ttl time.Duration, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		name:    name,
		maxSize: maxSize,
		ttl:     ttl,
		store:   make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the cache's name.
func (c *Cache) Name() string {
	return c.name
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// key trims only leading/trailing whitespace before hashing. No case
// folding: ideographic text has no case, and for everything else case can
// be semantically meaningful.
func (c *Cache) key(input string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(input)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for input. A hit past its expiry is evicted
// immediately and reported as absent.
func (c *Cache) Get(input string) (any, bool) {
	key := c.key(input)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expireAt) {
		delete(c.store, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value for input with a fresh TTL. When inserting a new key at
// capacity, expired entries are purged first; if the cache is still full,
// the entry with the earliest expireAt is evicted.
func (c *Cache) Set(input string, value any) {
	key := c.key(input)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxSize {
		now := c.now()
		for k, e := range c.store {
			if !e.expireAt.After(now) {
				delete(c.store, k)
			}
		}
		if len(c.store) >= c.maxSize {
			var oldest string
			var oldestAt time.Time
			for k, e := range c.store {
				if oldest == "" || e.expireAt.Before(oldestAt) {
					oldest = k
					oldestAt = e.expireAt
				}
			}
			delete(c.store, oldest)
		}
	}

	c.store[key] = entry{value: value, expireAt: c.now().Add(c.ttl)}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]entry)
}
