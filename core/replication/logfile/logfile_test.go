package logfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendRetrieveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(dir, "pages", 1<<20, false)
	require.NoError(t, err)
	defer f.Close()

	pages := [][]byte{[]byte("page-zero"), []byte("page-one"), []byte("page-two")}
	for i, p := range pages {
		require.NoError(t, f.Append(uint64(i), p))
	}
	require.Equal(t, uint64(3), f.Pages())

	for i, want := range pages {
		got, err := f.Retrieve(uint64(i))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestAppendOutOfOrderIsFatal(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(dir, "pages", 1<<20, false)
	require.NoError(t, err)
	defer f.Close()

	require.Panics(t, func() {
		_ = f.Append(5, []byte("nope"))
	})
}

func TestRetrieveOutOfBounds(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(dir, "pages", 1<<20, false)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Retrieve(0)
	require.Equal(t, ErrOutOfBounds, err)
}

func TestRepairAfterReopen(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(dir, "pages", 1<<20, false)
	require.NoError(t, err)
	require.NoError(t, f.Append(0, []byte("first")))
	require.NoError(t, f.Append(1, []byte("second")))
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	f2, err := Open(dir, "pages", 1<<20, false)
	require.NoError(t, err)
	defer f2.Close()
	require.Equal(t, uint64(2), f2.Pages())

	got, err := f2.Retrieve(1)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestVerifyTail(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(dir, "pages", 1<<20, true)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Append(0, []byte("abcdef")))
	require.NoError(t, f.Sync())

	ok, err := f.VerifyTail(0, []byte("abcdef"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.VerifyTail(0, []byte("zzzzzz"))
	require.NoError(t, err)
	require.False(t, ok)
}
