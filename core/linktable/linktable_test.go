package linktable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberstore/kernel/core/linktable/store"
	"github.com/emberstore/kernel/core/txn"
)

func openTestTable(t *testing.T) *LinkTable[string] {
	t.Helper()
	s, err := store.Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	d := txn.New[string](8)
	lt, err := Open[string](s, d)
	require.NoError(t, err)
	return lt
}

func TestPutGetRoundTrip(t *testing.T) {
	lt := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, lt.Put(ctx, "w", 1, 100))

	got, ok, err := lt.Get(ctx, "r", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), got)
}

func TestReverseIndexTracksMultipleLinks(t *testing.T) {
	lt := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, lt.Put(ctx, "w", 1, 500))
	require.NoError(t, lt.Put(ctx, "w", 2, 500))

	links, err := lt.LinksTo(ctx, "r", 500)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1, 2}, links)
}

func TestRepointingLinkUpdatesReverseIndex(t *testing.T) {
	lt := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, lt.Put(ctx, "w", 1, 500))
	require.NoError(t, lt.Put(ctx, "w", 1, 600))

	links500, err := lt.LinksTo(ctx, "r", 500)
	require.NoError(t, err)
	require.Empty(t, links500)

	links600, err := lt.LinksTo(ctx, "r", 600)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, links600)
}

func TestDeleteRemovesFromBothIndices(t *testing.T) {
	lt := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, lt.Put(ctx, "w", 1, 500))
	require.NoError(t, lt.Delete(ctx, "w", 1))

	_, ok, err := lt.Get(ctx, "r", 1)
	require.NoError(t, err)
	require.False(t, ok)

	links, err := lt.LinksTo(ctx, "r", 500)
	require.NoError(t, err)
	require.Empty(t, links)
}
