package units

import (
	"sync"
	"time"

	"github.com/rtoassure/backend/internal/domain"
)

// Cache is a TTL cache for units and their requirements, keyed by unit code.
// It is injected from main rather than being package state so tests can build
// isolated instances with their own clocks.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	unit      domain.UnitOfCompetency
	expiresAt time.Time
}

// NewCache builds a cache with the given TTL. now is injectable for tests.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: map[string]cacheEntry{},
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached unit if present and not expired.
func (c *Cache) Get(code string) (domain.UnitOfCompetency, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[code]
	if !ok {
		return domain.UnitOfCompetency{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, code)
		return domain.UnitOfCompetency{}, false
	}
	return entry.unit, true
}

// Set stores the unit under its code.
func (c *Cache) Set(code string, unit domain.UnitOfCompetency) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[code] = cacheEntry{
		unit:      unit,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate drops one unit, e.g. after a requirements import.
func (c *Cache) Invalidate(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
}
