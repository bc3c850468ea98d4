// Parsed-plan caching for filter expressions. Applications tend to
// re-run a small set of saved filter strings against a moving index, so
// re-tokenizing and re-parsing the same text on every search is wasted
// work.
//
// The cache is generational rather than recency-listed: plans live in a
// hot and a cold map of bounded size. Lookups and inserts land in the
// hot generation; when it fills, the generations rotate and whatever
// sat untouched in cold for the whole cycle is dropped in one step.
// Eviction is therefore O(1) amortized with no per-entry bookkeeping,
// at the cost of evicting in coarse batches instead of one strict
// least-recently-used entry at a time. For a cache of parsed ASTs that
// are cheap to rebuild, the coarser policy is a fine trade.
package filter

import (
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultPlanCacheSize = 1000

// cachedPlan is one resident plan plus the time it entered the cache,
// which anchors TTL expiry. Promotion from cold to hot keeps the
// original timestamp: a plan's age is measured from when it was parsed,
// not from when it was last asked for.
type cachedPlan struct {
	expr     Expr
	storedAt time.Time
}

// PlanCache is a thread-safe generational cache mapping filter query
// text to its parsed Expr tree.
type PlanCache struct {
	mu sync.Mutex

	perGen int
	ttl    time.Duration

	hot  map[uint64]cachedPlan
	cold map[uint64]cachedPlan

	hits      uint64
	misses    uint64
	rotations uint64
}

// PlanCacheStats reports cache occupancy and performance counters.
type PlanCacheStats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Rotations uint64
}

// NewPlanCache creates a plan cache. maxSize bounds each generation, so
// at most 2*maxSize plans are resident at once. Entries expire ttl
// after insertion; ttl == 0 disables expiry and leaves generation
// rotation as the only eviction.
func NewPlanCache(maxSize int, ttl time.Duration) *PlanCache {
	if maxSize <= 0 {
		maxSize = defaultPlanCacheSize
	}
	return &PlanCache{
		perGen: maxSize,
		ttl:    ttl,
		hot:    make(map[uint64]cachedPlan, maxSize),
		cold:   make(map[uint64]cachedPlan),
	}
}

// Key hashes the trimmed query text with xxhash so equivalent queries
// that differ only in leading/trailing whitespace share a cache slot.
func (c *PlanCache) Key(query string) uint64 {
	return xxhash.Sum64String(strings.TrimSpace(query))
}

// Get returns the parsed Expr for key if resident and unexpired. A hit
// in the cold generation promotes the plan back into hot, shielding it
// from the next rotation.
func (c *PlanCache) Get(key uint64) (Expr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan, inHot := c.hot[key]
	if !inHot {
		var inCold bool
		plan, inCold = c.cold[key]
		if !inCold {
			c.misses++
			return nil, false
		}
		delete(c.cold, key)
	}
	if c.expired(plan) {
		delete(c.hot, key)
		c.misses++
		return nil, false
	}
	if !inHot {
		c.admit(key, plan)
	}
	c.hits++
	return plan.expr, true
}

// Put inserts or refreshes the cached Expr for key, stamping a fresh
// TTL epoch.
func (c *PlanCache) Put(key uint64, expr Expr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admit(key, cachedPlan{expr: expr, storedAt: time.Now()})
}

// admit places a plan in the hot generation, rotating first if hot is
// full: hot demotes to cold wholesale and the previous cold generation,
// everything unused for a full cycle, is released to the GC in one
// step. Callers hold c.mu.
func (c *PlanCache) admit(key uint64, plan cachedPlan) {
	if _, resident := c.hot[key]; !resident && len(c.hot) >= c.perGen {
		c.cold = c.hot
		c.hot = make(map[uint64]cachedPlan, c.perGen)
		c.rotations++
	}
	c.hot[key] = plan
	delete(c.cold, key)
}

func (c *PlanCache) expired(plan cachedPlan) bool {
	return c.ttl > 0 && time.Since(plan.storedAt) > c.ttl
}

// Len returns the number of resident plans across both generations.
func (c *PlanCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hot) + len(c.cold)
}

// Clear drops both generations and leaves the counters intact.
func (c *PlanCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot = make(map[uint64]cachedPlan, c.perGen)
	c.cold = make(map[uint64]cachedPlan)
}

// Stats returns current occupancy and hit/miss counters. HitRate is a
// fraction in [0, 1].
func (c *PlanCache) Stats() PlanCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return PlanCacheStats{
		Size:      len(c.hot) + len(c.cold),
		Capacity:  2 * c.perGen,
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   rate,
		Rotations: c.rotations,
	}
}

// ParseCached parses src, serving from cache on a hit and populating
// the cache on a miss.
func ParseCached(cache *PlanCache, src string) (Expr, error) {
	key := cache.Key(src)
	if expr, ok := cache.Get(key); ok {
		return expr, nil
	}
	expr, err := Parse(src)
	if err != nil {
		return nil, err
	}
	cache.Put(key, expr)
	return expr, nil
}
