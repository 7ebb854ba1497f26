// Package history is an optional diagnostics enrichment for core/tree23: a
// bounded cache of recently committed roots, keyed by a monotonic generation
// number, so a recent snapshot survives a little past its last live
// reference for debugging/rollback inspection. It holds extra references
// only — it is never the source of truth for a Map's live root, and nodes
// are never deep-copied to populate it (per spec.md §9's "arena indices"
// design note: persistent nodes are shared by reference, not copied).
package history

import (
	lru "github.com/hashicorp/golang-lru"
)

// Tracker records committed generations of some tree23.Map[V]. Root is
// stored as `any` so Tracker does not need to be generic over V itself;
// callers type-assert back to their concrete snapshot/root type.
type Tracker struct {
	cache *lru.Cache
	next  uint64
}

// NewTracker creates a Tracker retaining up to size recent generations.
func NewTracker(size int) *Tracker {
	c, err := lru.New(size)
	if err != nil {
		// Only returned by golang-lru for size <= 0; callers are expected to
		// pass a positive bound.
		panic(err)
	}
	return &Tracker{cache: c}
}

// Record stores root under a freshly minted generation number and returns
// it, so callers can correlate a commit with the generation that produced
// it (e.g. for logging).
func (t *Tracker) Record(root any) uint64 {
	gen := t.next
	t.next++
	t.cache.Add(gen, root)
	return gen
}

// RootAt returns the root recorded at generation gen, if it has not yet
// been evicted.
func (t *Tracker) RootAt(gen uint64) (any, bool) {
	v, ok := t.cache.Get(gen)
	return v, ok
}

// Len returns the number of generations currently retained.
func (t *Tracker) Len() int {
	return t.cache.Len()
}
