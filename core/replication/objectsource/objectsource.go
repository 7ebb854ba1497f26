// Package objectsource abstracts the remote blob store the Log Page
// Replicator downloads an object from: a single-producer, back-pressured
// publisher of byte chunks (spec.md §6's "publisher interface producing
// byte chunks with explicit demand"). The replicator always runs it at a
// demand of exactly 1 — it calls Next once, waits for that chunk to be
// written to the destination file, then calls Next again.
package objectsource

import (
	"context"
	"fmt"
)

// ChunkSource is a single remote object opened for sequential, ordered
// download.
type ChunkSource interface {
	// Open begins the download and returns the advertised content length
	// (spec.md's onResponse(meta) carrying contentLength), before any chunk
	// has been requested.
	Open(ctx context.Context, ref string) (contentLength int64, err error)

	// Next returns the next chunk in the stream, requesting exactly one
	// unit of demand. Returns io.EOF once the source is exhausted.
	Next(ctx context.Context) ([]byte, error)

	// Close releases any resources the source holds (an open HTTP response
	// body, a download stream handle). Safe to call after EOF, after an
	// error, or on cancellation.
	Close() error
}

// ErrNotOpened is returned by Next if called before Open. Close before Open
// returns nil.
var ErrNotOpened = fmt.Errorf("objectsource: source not opened")
