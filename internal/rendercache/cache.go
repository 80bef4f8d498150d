// Package rendercache provides the in-memory fingerprint → render outcome
// mapping consulted by the render coordinator.
//
// The cache is deliberately unbounded: entries hold lightweight outcome
// metadata, not rendered files, and the process lifetime bounds growth. Store
// always overwrites, so a later successful retry replaces a cached failure
// for the same fingerprint.
package rendercache

import (
	"sync"
	"sync/atomic"

	"cvforge/internal/types"
)

// Cache maps content fingerprints to prior render outcomes.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*types.Outcome
	// Statistics tracking (atomic for thread safety)
	hits       int64
	misses     int64
	stores     int64
	overwrites int64
}

// New creates an empty render cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*types.Outcome),
	}
}

// Lookup returns the outcome previously stored for fingerprint, if any.
func (c *Cache) Lookup(fingerprint string) (*types.Outcome, bool) {
	c.mu.RLock()
	outcome, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if ok {
		atomic.AddInt64(&c.hits, 1)
	} else {
		atomic.AddInt64(&c.misses, 1)
	}
	return outcome, ok
}

// Store records outcome under fingerprint, overwriting any prior entry.
func (c *Cache) Store(fingerprint string, outcome *types.Outcome) {
	c.mu.Lock()
	_, existed := c.entries[fingerprint]
	c.entries[fingerprint] = outcome
	c.mu.Unlock()

	atomic.AddInt64(&c.stores, 1)
	if existed {
		atomic.AddInt64(&c.overwrites, 1)
	}
}

// Delete removes the entry for fingerprint if present. Used by the manual
// retry path to force a fresh attempt for unchanged content.
func (c *Cache) Delete(fingerprint string) {
	c.mu.Lock()
	delete(c.entries, fingerprint)
	c.mu.Unlock()
}

// Len returns the number of cached outcomes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry and resets statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*types.Outcome)
	c.mu.Unlock()

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.stores, 0)
	atomic.StoreInt64(&c.overwrites, 0)
}

// Stats reports cache activity counters.
type Stats struct {
	Hits       int64
	Misses     int64
	Stores     int64
	Overwrites int64
	Entries    int
}

// GetStats returns a snapshot of cache statistics.
func (c *Cache) GetStats() Stats {
	return Stats{
		Hits:       atomic.LoadInt64(&c.hits),
		Misses:     atomic.LoadInt64(&c.misses),
		Stores:     atomic.LoadInt64(&c.stores),
		Overwrites: atomic.LoadInt64(&c.overwrites),
		Entries:    c.Len(),
	}
}

// HitRate returns the fraction of lookups that hit, 0.0 if none occurred.
func (c *Cache) HitRate() float64 {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}
