// Package linktable is the thin facade spec.md's component D describes: it
// wires the Persistent 2-3 Tree Map (core/tree23) as the live forward/
// reverse index, the Transaction Dispatcher (core/txn) as its concurrency
// gate, and a durable key/value store (core/linktable/store) as the
// recovery source of truth, without introducing any concurrency or
// durability logic of its own.
package linktable

import (
	"context"
	"encoding/binary"

	"github.com/emberstore/kernel/core/linktable/store"
	"github.com/emberstore/kernel/core/tree23"
	"github.com/emberstore/kernel/core/txn"
)

// LinkTable maps int64 link identifiers to int64 target identifiers, and
// maintains the reverse mapping (target -> set of links) so both directions
// are O(log n) lookups against the live index.
type LinkTable[T comparable] struct {
	forward *tree23.Map[int64]   // linkID -> targetID
	reverse *tree23.Map[[]int64] // targetID -> []linkID

	durable    *store.Store
	dispatcher *txn.Dispatcher[T]
}

// Open constructs a LinkTable backed by durable, replaying its forward index
// from the store before returning.
func Open[T comparable](durable *store.Store, dispatcher *txn.Dispatcher[T]) (*LinkTable[T], error) {
	lt := &LinkTable[T]{
		forward:    tree23.NewMap[int64](),
		reverse:    tree23.NewMap[[]int64](),
		durable:    durable,
		dispatcher: dispatcher,
	}
	if err := lt.replay(); err != nil {
		return nil, err
	}
	return lt, nil
}

func linkKey(linkID int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(linkID))
	return b
}

func (lt *LinkTable[T]) replay() error {
	fb := lt.forward.BeginWrite()
	rb := lt.reverse.BeginWrite()

	err := lt.durable.IteratePrefix(nil, func(key, value []byte) bool {
		if len(key) != 8 || len(value) != 8 {
			return true
		}
		linkID := int64(binary.BigEndian.Uint64(key))
		targetID := int64(binary.BigEndian.Uint64(value))
		fb.Put(linkID, targetID)
		targets, _ := rb.Get(targetID)
		rb.Put(targetID, append(targets, linkID))
		return true
	})
	if err != nil {
		return err
	}
	fb.Commit()
	rb.Commit()
	return nil
}

// Put durably records linkID -> targetID and admits the write under a
// shared transaction. The forward and reverse indices are committed
// separately, so a reader can observe one update before the other.
func (lt *LinkTable[T]) Put(ctx context.Context, thread T, linkID, targetID int64) error {
	if err := lt.dispatcher.AcquireShared(ctx, thread); err != nil {
		return err
	}
	defer lt.dispatcher.Release(thread, 1)

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(targetID))
	if err := lt.durable.Put(linkKey(linkID), b); err != nil {
		return err
	}

	for {
		fb := lt.forward.BeginWrite()
		rb := lt.reverse.BeginWrite()

		if old, ok := fb.Get(linkID); ok && old != targetID {
			rb.Put(old, removeLink(mustGet(rb, old), linkID))
		}
		fb.Put(linkID, targetID)
		existing, _ := rb.Get(targetID)
		rb.Put(targetID, appendUnique(existing, linkID))

		if fb.Commit() && rb.Commit() {
			return nil
		}
		// Another writer landed first; retry against the fresh root.
	}
}

func mustGet(b *tree23.Builder[[]int64], key int64) []int64 {
	v, _ := b.Get(key)
	return v
}

// removeLink returns a fresh slice with linkID removed, never mutating
// links' backing array: links may still be referenced by an earlier,
// immutable tree23 snapshot.
func removeLink(links []int64, linkID int64) []int64 {
	out := make([]int64, 0, len(links))
	for _, l := range links {
		if l != linkID {
			out = append(out, l)
		}
	}
	return out
}

// appendUnique returns a fresh slice with linkID added if absent, never
// mutating links' backing array for the same reason as removeLink.
func appendUnique(links []int64, linkID int64) []int64 {
	out := make([]int64, len(links), len(links)+1)
	for i, l := range links {
		if l == linkID {
			return links
		}
		out[i] = l
	}
	return append(out, linkID)
}

// Get returns the target a link currently points at.
func (lt *LinkTable[T]) Get(ctx context.Context, thread T, linkID int64) (int64, bool, error) {
	if err := lt.dispatcher.AcquireShared(ctx, thread); err != nil {
		return 0, false, err
	}
	defer lt.dispatcher.Release(thread, 1)

	snap := lt.forward.BeginRead()
	v, ok := snap.Get(linkID)
	return v, ok, nil
}

// LinksTo returns every link currently pointing at targetID.
func (lt *LinkTable[T]) LinksTo(ctx context.Context, thread T, targetID int64) ([]int64, error) {
	if err := lt.dispatcher.AcquireShared(ctx, thread); err != nil {
		return nil, err
	}
	defer lt.dispatcher.Release(thread, 1)

	snap := lt.reverse.BeginRead()
	v, _ := snap.Get(targetID)
	return append([]int64(nil), v...), nil
}

// Delete removes a link, clearing its entry from both indices and from
// durable storage.
func (lt *LinkTable[T]) Delete(ctx context.Context, thread T, linkID int64) error {
	if err := lt.dispatcher.AcquireShared(ctx, thread); err != nil {
		return err
	}
	defer lt.dispatcher.Release(thread, 1)

	if err := lt.durable.Delete(linkKey(linkID)); err != nil {
		return err
	}

	for {
		fb := lt.forward.BeginWrite()
		targetID, ok := fb.Get(linkID)
		if !ok {
			fb.Commit()
			return nil
		}
		rb := lt.reverse.BeginWrite()
		existing, _ := rb.Get(targetID)
		rb.Put(targetID, removeLink(existing, linkID))
		fb.Remove(linkID)

		if fb.Commit() && rb.Commit() {
			return nil
		}
	}
}
