package simd

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type cacheEntry struct {
	generation uint64
	count      int
	groups     []Tri4
}

// TriCache keeps recently swizzled leaves so that coherent rays hitting the
// same (instance, leaf) pair skip the reformat. A TriCache is owned by a
// single traversal context and is not safe for concurrent use.
type TriCache struct {
	lru  *simplelru.LRU[uint64, *cacheEntry]
	free []*cacheEntry

	// Statistics.
	Hits   uint64
	Misses uint64
}

// CacheKey combines an instance id and a leaf id into a cache key.
func CacheKey(instance, leaf uint32) uint64 {
	return uint64(instance)<<32 | uint64(leaf)
}

// Create a cache holding up to entries swizzled leaves.
func NewTriCache(entries int) *TriCache {
	if entries < 1 {
		entries = 1
	}
	c := &TriCache{}
	// NewLRU only fails for non-positive sizes.
	c.lru, _ = simplelru.NewLRU[uint64, *cacheEntry](entries, func(_ uint64, e *cacheEntry) {
		c.free = append(c.free, e)
	})
	return c
}

// Get returns the swizzled groups for recs. The cached copy is rebuilt when
// it was produced for another geometry generation or record count.
func (c *TriCache) Get(key, generation uint64, recs []TriRecord) []Tri4 {
	if e, ok := c.lru.Get(key); ok {
		if e.generation == generation && e.count == len(recs) {
			c.Hits++
			return e.groups
		}
		c.Misses++
		e.groups = SwizzleForSIMD(recs, e.groups)
		e.generation = generation
		e.count = len(recs)
		return e.groups
	}

	c.Misses++
	var e *cacheEntry
	if n := len(c.free); n > 0 {
		e = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		e = &cacheEntry{}
	}
	e.groups = SwizzleForSIMD(recs, e.groups)
	e.generation = generation
	e.count = len(recs)
	c.lru.Add(key, e)
	return e.groups
}

// Number of cached leaves.
func (c *TriCache) Len() int {
	return c.lru.Len()
}
