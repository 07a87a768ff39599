// Package resolver implements the resolved-URL cache, the extractor
// executor, and the per-instance fair scheduler (spec §4.3-§4.5).
package resolver

import (
	"sync"
	"time"
)

// CacheSong is the resolved media URL stored against a song id.
type CacheSong = string

type cacheEntry struct {
	value      CacheSong
	insertedAt time.Time
}

// Cache is a concurrent TTL map SongID -> CacheSong. No caller ever
// observes a value older than TTL (spec §4.3, invariant #1 in §8): Get
// itself re-checks freshness rather than trusting the periodic reaper to
// have run.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	stopOnce sync.Once
	stop     chan struct{}
}

// NewCache creates a cache with the given TTL and starts its reaper, which
// runs every ttl/2 (spec §4.3).
func NewCache(ttl time.Duration) *Cache {
	c := &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		stop:    make(chan struct{}),
	}
	go c.reapLoop()
	return c
}

// Upsert stores value under id with the current timestamp.
func (c *Cache) Upsert(id string, value CacheSong) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{value: value, insertedAt: time.Now()}
}

// Get returns the cached value and true only when it exists and is fresh.
// A stale entry is reported as a miss but is not deleted here; the reaper
// owns eviction so Get stays a pure read under RLock.
func (c *Cache) Get(id string) (CacheSong, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return "", false
	}
	if time.Since(entry.insertedAt) >= c.ttl {
		return "", false
	}
	return entry.value, true
}

// Evict removes an entry immediately, used by the instance's retry policy
// after a playback error against the currently cached URL (spec §4.8).
func (c *Cache) Evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// reapLoop periodically collects the outdated key set before deleting, so
// that a writer blocked on the iteration never stalls behind the sweep
// (spec §4.3: "materializes outdated key set before deleting").
func (c *Cache) reapLoop() {
	interval := c.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.reapOnce()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) reapOnce() {
	c.mu.RLock()
	stale := make([]string, 0)
	for id, entry := range c.entries {
		if time.Since(entry.insertedAt) >= c.ttl {
			stale = append(stale, id)
		}
	}
	c.mu.RUnlock()

	if len(stale) == 0 {
		return
	}

	c.mu.Lock()
	for _, id := range stale {
		delete(c.entries, id)
	}
	c.mu.Unlock()
}

// Close stops the background reaper.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
