// SPDX-License-Identifier: Apache-2.0

// Package cache provides a TTL cache used for cross-run state that is
// expensive to recompute: subnet-to-AZ lookups and cluster state snapshots.
// The in-memory backend is the default; a Redis backend is available so
// several clusterman daemons can share lookups.
package cache

import (
	"sync"
	"time"
)

// Cache is a thread-safe key/value cache with per-entry TTL.
type Cache interface {
	// Get retrieves a value. The second return is false if the key is
	// absent or expired.
	Get(key string) (any, bool)
	// Set stores a value with the given TTL.
	Set(key string, value any, ttl time.Duration)
	// Delete removes a key.
	Delete(key string)
	// Stats returns hit/miss counters.
	Stats() Stats
	// Close releases backend resources.
	Close() error
}

// Stats holds cache performance counters.
type Stats struct {
	Hits   int64
	Misses int64
	Sets   int64
	Size   int
}

type entry struct {
	value   any
	expires time.Time
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	stats   Stats
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-memory cache. Expired entries are swept on
// the given interval; an interval of 0 disables the sweeper and expired
// entries are only dropped lazily on Get.
func NewMemoryCache(sweepInterval time.Duration) Cache {
	c := &memoryCache{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweep(sweepInterval)
	}
	return c
}

func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		if ok {
			delete(c.entries, key)
		}
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expires: time.Now().Add(ttl)}
	c.stats.Sets++
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.Size = len(c.entries)
	return stats
}

func (c *memoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *memoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expires) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
