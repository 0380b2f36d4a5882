package domain

import (
	"sync"
	"time"
)

type cacheEntry struct {
	page   Page
	expiry time.Time
}

// PageCache is a keyed page cache with a fixed time-to-live. An entry
// is logically absent once the clock reaches its expiry, whether or not
// it has been overwritten. The cache is owned by the composition root
// and passed to the service explicitly.
type PageCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewPageCache creates a cache whose entries live for ttl.
func NewPageCache(ttl time.Duration) *PageCache {
	return &PageCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// GetOrCompute returns the live entry under key, or invokes compute,
// stores its result with a fresh expiry, and returns it. Errors from
// compute propagate unchanged and never write an entry.
//
// Safe for concurrent use. Concurrent misses on the same key may each
// run compute; the writes overwrite each other and both carry equally
// fresh expiries, so no locking spans the computation.
func (c *PageCache) GetOrCompute(key string, compute func() (Page, error)) (Page, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiry) {
		return entry.page, nil
	}

	page, err := compute()
	if err != nil {
		return Page{}, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{page: page, expiry: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return page, nil
}

// InvalidateAll drops every entry. Used by tests and administrative resets.
func (c *PageCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
