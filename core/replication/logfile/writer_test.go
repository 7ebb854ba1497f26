package logfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/cp"
	"github.com/stretchr/testify/require"
)

// writeGoldenFixture lays down a deterministic payload file on disk and
// returns its path, the way the teacher's account-cache tests stage a
// golden fixture with cp.CopyFile before exercising code against it.
func writeGoldenFixture(t *testing.T, dir string) (path string, payload []byte) {
	t.Helper()
	payload = make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	src := filepath.Join(dir, "golden.src")
	require.NoError(t, os.WriteFile(src, payload, 0644))

	staged := filepath.Join(dir, "golden.staged")
	require.NoError(t, cp.CopyFile(staged, src))
	return staged, payload
}

func TestWriterRoundTripsGoldenFixture(t *testing.T) {
	dir := t.TempDir()
	fixture, payload := writeGoldenFixture(t, dir)
	golden, err := os.ReadFile(fixture)
	require.NoError(t, err)
	require.Equal(t, payload, golden)

	dest := filepath.Join(dir, "dest.dat")
	w, err := NewWriter(dest)
	require.NoError(t, err)

	chunkSize := 500
	var pos int64
	for i := 0; i < len(golden); i += chunkSize {
		end := i + chunkSize
		if end > len(golden) {
			end = len(golden)
		}
		n, offset, err := w.WriteChunk(golden[i:end])
		require.NoError(t, err)
		require.Equal(t, pos, offset)
		pos += int64(n)
	}
	require.NoError(t, w.SyncClose())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWriterRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dest.dat")
	w, err := NewWriter(dest)
	require.NoError(t, err)
	require.NoError(t, w.SyncClose())

	_, err = NewWriter(dest)
	require.Equal(t, ErrAlreadyExists, err)
}

func TestWriterVerifyTail(t *testing.T) {
	dir := t.TempDir()
	_, payload := writeGoldenFixture(t, dir)

	dest := filepath.Join(dir, "dest.dat")
	w, err := NewWriter(dest)
	require.NoError(t, err)
	_, _, err = w.WriteChunk(payload)
	require.NoError(t, err)
	require.NoError(t, w.SyncClose())

	ok, err := w.VerifyTail(4000, payload[4000:])
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = w.VerifyTail(4000, []byte("not the tail"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWriterAbortDeletesPartialFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dest.dat")
	w, err := NewWriter(dest)
	require.NoError(t, err)
	_, _, err = w.WriteChunk([]byte("partial"))
	require.NoError(t, err)

	require.NoError(t, w.Abort())
	_, statErr := os.Stat(dest)
	require.True(t, os.IsNotExist(statErr))
}
