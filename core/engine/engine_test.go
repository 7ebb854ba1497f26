package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenCloseAndBasicTransactionFlow(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	e, err := Open[string](opts)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	release, err := e.BeginShared(ctx, "writer")
	require.NoError(t, err)

	require.NoError(t, e.Links.Put(ctx, "writer", 1, 100))
	release()

	got, ok, err := e.Links.Get(ctx, "reader", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), got)
}

func TestAppendPageIsLocalOnlyWithoutRemoteSource(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	e, err := Open[string](opts)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.AppendPage(context.Background(), 0, []byte("hello")))
	require.Equal(t, uint64(1), e.Log.Pages())

	_, err = e.RecoverObject(context.Background(), "missing", 0, nil)
	require.Equal(t, ErrNoRemoteSource, err)
}

type fakeRemoteSource struct {
	payload []byte
	pos     int
}

func (f *fakeRemoteSource) Open(ctx context.Context, ref string) (int64, error) {
	return int64(len(f.payload)), nil
}

func (f *fakeRemoteSource) Next(ctx context.Context) ([]byte, error) {
	if f.pos >= len(f.payload) {
		return nil, io.EOF
	}
	n := 8
	if f.pos+n > len(f.payload) {
		n = len(f.payload) - f.pos
	}
	chunk := f.payload[f.pos : f.pos+n]
	f.pos += n
	return chunk, nil
}

func (f *fakeRemoteSource) Close() error { return nil }

func TestRecoverObjectAppendsDownloadedBytesAsLogPage(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	opts.RemoteSource = &fakeRemoteSource{payload: []byte("recovered snapshot bytes")}
	e, err := Open[string](opts)
	require.NoError(t, err)
	defer e.Close()

	result, err := e.RecoverObject(context.Background(), "snapshot-1", 0, nil)
	require.NoError(t, err)
	require.Equal(t, int64(len("recovered snapshot bytes")), result.BytesWritten)
	require.Equal(t, uint64(1), e.Log.Pages())

	got, err := e.Log.Retrieve(0)
	require.NoError(t, err)
	require.Equal(t, []byte("recovered snapshot bytes"), got)
}

func TestExclusiveTransactionExcludesConcurrentShared(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	e, err := Open[string](opts)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	releaseShared, err := e.BeginShared(ctx, "reader")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		releaseExclusive, err := e.BeginExclusive(ctx, "gc")
		require.NoError(t, err)
		releaseExclusive()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("exclusive transaction must not be admitted while a shared one is open")
	default:
	}

	releaseShared()
	<-done
}
