package tree23

import (
	"sync/atomic"

	"github.com/emberstore/kernel/internal/xerrors"
)

// Map is the mutable container transactions fork snapshots and builders
// from. The zero value is not usable; construct with NewMap. Map itself holds no data —
// it is a thin, cheap-to-clone handle over a shared root pointer, matching
// spec.md §4.A's Clone() contract ("cheap; shares root").
type Map[V any] struct {
	root *atomic.Pointer[node[V]]
}

// NewMap returns an empty persistent map.
func NewMap[V any]() *Map[V] {
	m := &Map[V]{root: &atomic.Pointer[node[V]]{}}
	return m
}

// Clone returns a new Map handle sharing the same live root. It is O(1): no
// node is copied.
func (m *Map[V]) Clone() *Map[V] {
	cp := &atomic.Pointer[node[V]]{}
	cp.Store(m.root.Load())
	return &Map[V]{root: cp}
}

// Snapshot is an immutable view of the map at a point in time. Reads never
// block and are never invalidated by later mutations elsewhere.
type Snapshot[V any] struct {
	root *node[V]
}

// BeginRead captures the current root as an immutable snapshot.
func (m *Map[V]) BeginRead() *Snapshot[V] {
	return &Snapshot[V]{root: m.root.Load()}
}

// Get returns the value stored under key, if present.
func (s *Snapshot[V]) Get(key int64) (V, bool) {
	return get(s.root, key)
}

// ContainsKey reports whether key is present in the snapshot.
func (s *Snapshot[V]) ContainsKey(key int64) bool {
	return containsKey(s.root, key)
}

// Size returns the number of entries in the snapshot.
func (s *Snapshot[V]) Size() int {
	return size(s.root)
}

// Min and Max return the smallest/largest key present, if any.
func (s *Snapshot[V]) Min() (int64, bool) { return minKey(s.root) }
func (s *Snapshot[V]) Max() (int64, bool) { return maxKey(s.root) }

// Iterate walks entries in ascending key order, stopping early if visit
// returns false. Snapshot iteration is never invalidated.
func (s *Snapshot[V]) Iterate(visit func(key int64, val V) bool) {
	inorder(s.root, visit)
}

// All returns every (key, value) pair in ascending order. Convenience
// wrapper over Iterate for small maps / tests.
func (s *Snapshot[V]) All() ([]int64, []V) {
	keys := make([]int64, 0, s.Size())
	vals := make([]V, 0, s.Size())
	s.Iterate(func(k int64, v V) bool {
		keys = append(keys, k)
		vals = append(vals, v)
		return true
	})
	return keys, vals
}

// Builder is a single-writer, mutable view forked from a snapshot. Mutations
// produce new nodes; Commit atomically swaps the live root iff it still
// equals the root Builder was forked from.
type Builder[V any] struct {
	m        *Map[V]
	forkRoot *node[V]
	cur      *node[V]
	gen      uint64 // bumped on every mutation; invalidates outstanding iterators
}

// BeginWrite forks a new Builder from the map's current live root.
func (m *Map[V]) BeginWrite() *Builder[V] {
	root := m.root.Load()
	return &Builder[V]{m: m, forkRoot: root, cur: root}
}

// Put inserts or replaces the value for key. A null/zero value is still
// accepted by the type system (V is statically typed), but the spec's "put
// with a null value is rejected" rule is enforced at the API boundary by
// PutValue for reference-typed V; callers storing interface{} should use
// PutValue to get that check.
func (b *Builder[V]) Put(key int64, val V) {
	b.cur = rootInsert(b.cur, key, val)
	b.gen++
}

// PutValue is like Put but additionally rejects a literal nil value for
// interface-shaped V, per spec.md §4.A ("put with a null value is
// rejected").
func (b *Builder[V]) PutValue(key int64, val any) error {
	if val == nil {
		return xerrors.Breach("tree23: put rejected a nil value for key %d", key)
	}
	v, ok := val.(V)
	if !ok {
		return xerrors.Breach("tree23: value %T is not assignable to the map's value type", val)
	}
	b.Put(key, v)
	return nil
}

// Remove deletes key, returning its value and whether it was present.
func (b *Builder[V]) Remove(key int64) (V, bool) {
	newRoot, val, ok := rootRemove(b.cur, key)
	if ok {
		b.cur = newRoot
		b.gen++
	}
	return val, ok
}

// Get reads through the builder's in-progress state.
func (b *Builder[V]) Get(key int64) (V, bool) {
	return get(b.cur, key)
}

// Size returns the number of entries in the builder's current state.
func (b *Builder[V]) Size() int {
	return size(b.cur)
}

// Iterator returns a single-use forward iterator over the builder's state as
// of this call. Any subsequent Put/Remove invalidates it: the next call to
// Next returns (0, zero, false, err) where err is non-nil, per spec.md
// §4.A's "builder iterators are invalidated by any mutation."
func (b *Builder[V]) Iterator() *BuilderIterator[V] {
	snap := &Snapshot[V]{root: b.cur}
	keys, vals := snap.All()
	return &BuilderIterator[V]{b: b, gen: b.gen, keys: keys, vals: vals}
}

// BuilderIterator walks a Builder's state at the moment Iterator was called.
type BuilderIterator[V any] struct {
	b    *Builder[V]
	gen  uint64
	i    int
	keys []int64
	vals []V
}

// Next advances the iterator. ok is false at end of input or once the
// builder has been mutated since the iterator was created (err is then
// non-nil).
func (it *BuilderIterator[V]) Next() (key int64, val V, ok bool, err error) {
	if it.gen != it.b.gen {
		return 0, val, false, xerrors.Breach("tree23: builder iterator invalidated by a mutation")
	}
	if it.i >= len(it.keys) {
		return 0, val, false, nil
	}
	key, val = it.keys[it.i], it.vals[it.i]
	it.i++
	return key, val, true, nil
}

// Commit atomically replaces the map's live root with the builder's current
// state, iff the live root has not advanced since the builder was forked.
// It returns false on conflict; the caller must retry (re-fork and redo its
// mutations) per spec.md §3/§4.A's optimistic snapshot isolation.
func (b *Builder[V]) Commit() bool {
	return b.m.root.CompareAndSwap(b.forkRoot, b.cur)
}
