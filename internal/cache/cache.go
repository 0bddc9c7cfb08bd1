// Package cache provides an in-memory TTL cache. The formatter uses it to
// skip re-running external formatters on text they have already seen.
package cache

import (
	"sync"
	"time"
)

// Entry represents a cached value.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// IsExpired returns true if the entry has expired
func (e *Entry[V]) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// MemoryCache is an in-memory cache with TTL support and a size bound.
type MemoryCache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]*Entry[V]
	maxEntries int

	// For background cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once // Ensures Stop() is idempotent
	done            chan struct{}
}

// NewMemoryCache creates a cache holding at most maxEntries values
// (unbounded when maxEntries <= 0). Call Stop to end its cleanup goroutine.
func NewMemoryCache[V any](maxEntries int) *MemoryCache[V] {
	c := &MemoryCache[V]{
		entries:         make(map[string]*Entry[V]),
		maxEntries:      maxEntries,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
		done:            make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a value. Expired entries are removed and reported missing.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}
	if entry.IsExpired() {
		c.dropExpired(key, entry)
		return zero, false
	}
	return entry.Value, true
}

// dropExpired deletes key only while it still maps to the expired entry a
// reader saw; a Set that landed after the read lock was released is kept.
func (c *MemoryCache[V]) dropExpired(key string, seen *Entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries[key]; ok && current == seen && current.IsExpired() {
		delete(c.entries, key)
	}
}

// Set stores value for ttl. When the cache is full, expired entries go
// first, then the entry closest to expiry.
func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	entry := &Entry[V]{Value: value, ExpiresAt: time.Now().Add(ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.removeExpiredLocked(time.Now())
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = entry
}

// Invalidate removes an entry from the cache
func (c *MemoryCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll removes all entries from the cache
func (c *MemoryCache[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V])
	c.mu.Unlock()
}

func (c *MemoryCache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.ExpiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.ExpiresAt
		}
	}
	delete(c.entries, oldestKey)
}

func (c *MemoryCache[V]) removeExpiredLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache[V]) cleanupLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.removeExpiredLocked(time.Now())
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Stop stops the background cleanup goroutine and waits for it to exit.
// Safe to call multiple times
func (c *MemoryCache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
	<-c.done
}

// Len returns the number of entries in the cache (for testing)
func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
