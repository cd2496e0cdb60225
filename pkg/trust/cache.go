package trust

import (
	"sync"
	"time"
)

const (
	// DefaultCacheTTL is the freshness window for cached evaluations.
	DefaultCacheTTL = 15 * time.Minute

	// DefaultCacheCapacity bounds the number of cached principals. The
	// cache would otherwise grow with the principal population; once over
	// capacity the oldest entry is dropped.
	DefaultCacheCapacity = 1000
)

// cacheEntry pairs an evaluation with the time it entered the cache.
// storedAt governs both expiry and oldest-first eviction; cache-hit
// adjustments update the evaluation without refreshing storedAt.
type cacheEntry struct {
	eval     Evaluation
	storedAt time.Time
}

// evalCache is a bounded TTL cache of evaluations keyed by principal ID.
// Expiry is checked on read; eviction happens on write. Safe for concurrent
// use.
type evalCache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func newEvalCache(ttl time.Duration, capacity int, now func() time.Time) *evalCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &evalCache{
		entries:  make(map[string]*cacheEntry),
		capacity: capacity,
		ttl:      ttl,
		now:      now,
	}
}

// get returns a fresh cached evaluation, or ok=false on miss or expiry.
// Expired entries are removed eagerly.
func (c *evalCache) get(principalID string) (Evaluation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[principalID]
	if !ok {
		return Evaluation{}, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, principalID)
		return Evaluation{}, false
	}
	return e.eval, true
}

// put stores a freshly computed evaluation, evicting the oldest entry when
// the cache is at capacity.
func (c *evalCache) put(eval Evaluation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[eval.PrincipalID]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[eval.PrincipalID] = &cacheEntry{eval: eval, storedAt: c.now()}
}

// update replaces the evaluation for an existing entry without refreshing its
// freshness window. Used for cache-hit context adjustments.
func (c *evalCache) update(eval Evaluation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[eval.PrincipalID]; ok {
		e.eval = eval
	}
}

// evictOldestLocked drops the entry with the earliest storedAt.
// Caller must hold c.mu. Linear scan: capacity is small and eviction rare.
func (c *evalCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// len returns the number of cached entries.
func (c *evalCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// clear empties the cache. Exposed through Engine for test isolation.
func (c *evalCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
