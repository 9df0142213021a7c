// Package recency implements the Recency Cache (spec §4.4, C4): an
// LRU-backed cache of recently decided names, sparing the Policy Decider
// a full pipeline re-run for repeat queries.
//
// Adapted from the teacher's repos/blocklist/lru/cache.go, generalized from
// domain.BlockDecision to domain.Decision.
package recency

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/policycore/internal/policy/domain"
)

// Cache is the Recency Cache's public contract.
type Cache interface {
	Get(name string) (domain.Decision, bool)
	Put(name string, d domain.Decision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// lruCache is an LRU-backed Cache implementation. It tracks basic metrics:
// hits, misses, and evictions.
type lruCache struct {
	lru       *lru.Cache[string, domain.Decision]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op Cache used when size <= 0.
type disabledCache struct{}

// New creates a new Cache with the given capacity. If size <= 0, a disabled
// no-op cache is returned that always misses and tracks no metrics.
func New(size int) (Cache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var c lruCache
	// Use NewWithEvict to observe evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ string, _ domain.Decision) {
		atomic.AddUint64(&c.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	c.lru = cache
	return &c, nil
}

// Get looks up a decision by name. When found, increments hits; otherwise increments misses.
func (c *lruCache) Get(name string) (domain.Decision, bool) {
	if val, ok := c.lru.Get(name); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return domain.NoneDecision(), false
}

// Put stores a decision by name.
func (c *lruCache) Put(name string, d domain.Decision) {
	c.lru.Add(name, d)
}

// Len returns the number of entries in the cache.
func (c *lruCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *lruCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *lruCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

// disabledCache implementation

func (d *disabledCache) Get(string) (domain.Decision, bool) { return domain.NoneDecision(), false }

func (d *disabledCache) Put(string, domain.Decision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ Cache = (*lruCache)(nil)
var _ Cache = (*disabledCache)(nil)
