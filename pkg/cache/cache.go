// Package cache provides a thread-safe TTL cache used for rendered guide
// HTML. Backends: in-memory (default) and Redis.
package cache

import (
	"sync"
	"time"
)

// Cache is the common surface of both backends.
type Cache interface {
	// Get retrieves a value. The second return is false when the key is
	// missing or expired.
	Get(key string) (string, bool)
	// Set stores a value with the given TTL.
	Set(key string, value string, ttl time.Duration)
	// Delete removes a single key.
	Delete(key string)
	// Clear removes all values.
	Clear()
	// Stats returns hit/miss counters.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Evictions   int64 `json:"evictions"`
	CurrentSize int   `json:"current_size"`
}

type entry struct {
	value      string
	expiration time.Time
}

func (e *entry) isExpired() bool {
	return time.Now().After(e.expiration)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	janitor *janitor
}

// NewMemoryCache creates an in-memory cache. A positive cleanupInterval
// starts a background janitor that evicts expired entries.
func NewMemoryCache(cleanupInterval time.Duration) Cache {
	c := &memoryCache{
		entries: make(map[string]*entry),
	}
	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}
	return c
}

func (c *memoryCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.isExpired() {
		c.stats.Misses++
		return "", false
	}
	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) Set(key string, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
	c.stats.Sets++
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

// Stop terminates the janitor goroutine. Safe to call once after use;
// mainly for tests.
func (c *memoryCache) Stop() {
	if c.janitor != nil {
		close(c.janitor.stop)
	}
}

func (c *memoryCache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.isExpired() {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}
