package tree23

import (
	"math/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

var dumper = spew.ConfigState{Indent: "    "}

func TestPutGet(t *testing.T) {
	m := NewMap[string]()
	b := m.BeginWrite()
	b.Put(5, "five")
	v, ok := b.Get(5)
	require.True(t, ok)
	require.Equal(t, "five", v)
	require.True(t, b.Commit())
}

func TestOrderedIterationAndSize(t *testing.T) {
	m := NewMap[int]()
	b := m.BeginWrite()
	for _, k := range []int64{5, 2, 8, 1, 9, 2} {
		b.Put(k, int(k))
	}
	require.True(t, b.Commit())

	snap := m.BeginRead()
	require.Equal(t, 5, snap.Size())
	keys, _ := snap.All()
	require.Equal(t, []int64{1, 2, 5, 8, 9}, keys)
}

func TestRemove(t *testing.T) {
	m := NewMap[string]()
	b := m.BeginWrite()
	b.Put(1, "a")
	b.Put(2, "b")
	require.True(t, b.Commit())

	b2 := m.BeginWrite()
	v, ok := b2.Remove(1)
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.True(t, b2.Commit())

	snap := m.BeginRead()
	require.False(t, snap.ContainsKey(1))
	require.Equal(t, 1, snap.Size())
}

func TestSnapshotImmutableAcrossLaterMutation(t *testing.T) {
	m := NewMap[int]()
	b := m.BeginWrite()
	b.Put(1, 100)
	require.True(t, b.Commit())

	snap := m.BeginRead()

	b2 := m.BeginWrite()
	b2.Put(1, 999)
	b2.Put(2, 200)
	require.True(t, b2.Commit())

	v, ok := snap.Get(1)
	require.True(t, ok)
	require.Equal(t, 100, v)
	require.False(t, snap.ContainsKey(2))
}

func TestConcurrentBuildersOnlyOneCommits(t *testing.T) {
	m := NewMap[int]()
	b := m.BeginWrite()
	b.Put(1, 1)
	require.True(t, b.Commit())

	snap := m.BeginRead()
	_ = snap

	b1 := m.BeginWrite()
	b2 := m.BeginWrite()
	b1.Put(2, 2)
	b2.Put(3, 3)

	ok1 := b1.Commit()
	ok2 := b2.Commit()
	require.True(t, ok1 != ok2, "exactly one of the two forked builders should commit")

	final := m.BeginRead()
	if ok1 {
		require.True(t, final.ContainsKey(2))
		require.False(t, final.ContainsKey(3))
	} else {
		require.True(t, final.ContainsKey(3))
		require.False(t, final.ContainsKey(2))
	}
}

func TestBuilderIteratorInvalidatedByMutation(t *testing.T) {
	m := NewMap[int]()
	b := m.BeginWrite()
	b.Put(1, 1)
	b.Put(2, 2)

	it := b.Iterator()
	b.Put(3, 3)

	_, _, _, err := it.Next()
	require.Error(t, err)
}

func TestPutValueRejectsNil(t *testing.T) {
	m := NewMap[any]()
	b := m.BeginWrite()
	err := b.PutValue(1, nil)
	require.Error(t, err)
}

func TestRandomizedAgainstReferenceMap(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	reference := map[int64]int{}

	m := NewMap[int]()
	for round := 0; round < 200; round++ {
		b := m.BeginWrite()
		for i := 0; i < 20; i++ {
			k := rng.Int63n(50)
			if rng.Intn(2) == 0 {
				b.Put(k, int(k)*7)
				reference[k] = int(k) * 7
			} else {
				delete(reference, k)
				b.Remove(k)
			}
		}
		require.True(t, b.Commit())

		snap := m.BeginRead()
		keys, values := snap.All()
		require.Equal(t, len(reference), snap.Size(), "round %d: size mismatch, tree holds %s", round, dumper.Sdump(keys))
		for k, want := range reference {
			got, ok := snap.Get(k)
			require.True(t, ok, "round %d: missing key %d, reference is %s", round, k, dumper.Sdump(reference))
			require.Equal(t, want, got, "round %d: value mismatch for key %d, tree values are %s", round, k, dumper.Sdump(values))
		}

		for i := 1; i < len(keys); i++ {
			require.True(t, keys[i-1] < keys[i], "round %d: keys out of order: %s", round, dumper.Sdump(keys))
		}
	}
}
