// Package cache implements the Cache Store: an opaque key->value store
// with TTL, atomic get/set/remove/exists. Backend failures are non-fatal —
// Get returns a miss, Set is best-effort — so the facade's happy path never
// observes a cache-layer error.
package cache

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache is the opaque key->value contract shared by every backend.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Remove(key string)
	Exists(key string) bool
}

type entry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// memoryCache is the default backend: a mutex-guarded map with a background
// sweep that evicts expired entries so long-running processes don't retain
// unbounded dead keys between reads.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	stop    chan struct{}
}

// New builds the default in-process cache and starts its cleanup loop.
func New() Cache {
	c := &memoryCache{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// NewAuto selects a Redis-backed cache when REDIS_ADDR is set in the
// environment, falling back to the in-process map otherwise — the same
// switch a single binary uses to go from standalone development to a
// shared-cache deployment without a code change.
func NewAuto() Cache {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		if rc, err := newRedisCache(addr); err == nil {
			log.Info().Str("redis_addr", addr).Msg("cache store backed by redis")
			return rc
		}
		log.Warn().Str("redis_addr", addr).Msg("failed to connect to redis, falling back to in-memory cache")
	}
	return New()
}

func (c *memoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

func (c *memoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.entries[key] = e
}

func (c *memoryCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		return false
	}
	return true
}

func (c *memoryCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *memoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
}

// Close stops the background sweep. Safe to call on any Cache; no-op on
// backends without a background goroutine.
func Close(c Cache) {
	if mc, ok := c.(*memoryCache); ok {
		close(mc.stop)
	}
}
