// internal/extractor/cache.go
package extractor

import (
	"sync"
	"time"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

// DefaultCacheTTL is how long a snapshot is reused for repeated requests on the same page.
const DefaultCacheTTL = 5 * time.Second

// Cache holds the most recent snapshot for a short window. It keeps a single entry:
// a Put replaces whatever was there, and a Get for a different URL (navigation) misses.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	entry *cacheEntry
}

type cacheEntry struct {
	url      string
	snapshot schemas.PageSnapshot
	storedAt time.Time
}

// NewCache creates a cache with the given TTL. A non-positive TTL disables caching.
// now may be nil, in which case time.Now is used.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now}
}

// Get returns the cached snapshot for pageURL if it was stored less than TTL ago.
func (c *Cache) Get(pageURL string) (schemas.PageSnapshot, bool) {
	if c == nil {
		return schemas.PageSnapshot{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry == nil || c.ttl <= 0 {
		return schemas.PageSnapshot{}, false
	}
	if c.entry.url != pageURL {
		// The page navigated away; the old snapshot is no longer relevant.
		c.entry = nil
		return schemas.PageSnapshot{}, false
	}
	if c.now().Sub(c.entry.storedAt) >= c.ttl {
		c.entry = nil
		return schemas.PageSnapshot{}, false
	}
	return c.entry.snapshot, true
}

// Put stores s, discarding any previous entry. Snapshots carrying an extraction
// error are not cached so the next request retries the full extraction.
func (c *Cache) Put(s schemas.PageSnapshot) {
	if c == nil || c.ttl <= 0 || s.ExtractionError != "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &cacheEntry{url: s.SourceURL, snapshot: s, storedAt: c.now()}
}

// Invalidate drops the cached entry.
func (c *Cache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}
