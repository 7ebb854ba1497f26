package logfile

import (
	"bytes"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/emberstore/kernel/internal/xerrors"
	"github.com/emberstore/kernel/internal/xmetrics"
)

// ErrAlreadyExists is returned by NewWriter if the destination path already
// exists, matching spec.md §6's "file is created exclusively (refuses to
// overwrite)".
var ErrAlreadyExists = fmt.Errorf("logfile: destination already exists")

// Writer is the single-file, create-exclusive destination the Log Page
// Replicator streams a downloaded object into, written from offset 0
// upward with no index file alongside it. Grounded on freezer_table.go's
// single active head-file write/Sync/Close pattern, stripped of the
// multi-file chaining and item index that a freezer table needs and a
// one-shot download does not.
type Writer struct {
	path string
	f    *os.File
	pos  int64

	WriteMeter xmetrics.Meter
}

// NewWriter creates path with O_CREATE|O_EXCL, failing with ErrAlreadyExists
// if it's already there.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return &Writer{path: path, f: f}, nil
}

// WriteChunk appends chunk at the writer's current position, advancing it.
// Per spec.md §4.C, a chunk buffer position-reset before writing is the
// caller's responsibility; writing more bytes than the destination expects
// is never checked here (the replicator, not the writer, knows the expected
// total length).
func (w *Writer) WriteChunk(chunk []byte) (written int, offset int64, err error) {
	n, err := w.f.Write(chunk)
	offset = w.pos
	w.pos += int64(n)
	w.WriteMeter.Mark(int64(n))
	if err != nil {
		return n, offset, err
	}
	return n, offset, nil
}

// Position returns the number of bytes written so far.
func (w *Writer) Position() int64 {
	return w.pos
}

// SyncClose force-syncs then closes the file, per spec.md §6 ("force-synced
// before close").
func (w *Writer) SyncClose() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Abort closes (without syncing) and deletes the partial file, per spec.md
// §7's "I/O failure ... closes, deletes the partial file."
func (w *Writer) Abort() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	return os.Remove(w.path)
}

// VerifyTail mmaps the written file read-only and confirms that the bytes
// at [offset, offset+len(want)) match want. Test/debug only: never called on
// the Complete hot path.
func (w *Writer) VerifyTail(offset int64, want []byte) (bool, error) {
	fh, err := os.OpenFile(w.path, os.O_RDONLY, 0644)
	if err != nil {
		return false, err
	}
	defer fh.Close()

	m, err := mmap.Map(fh, mmap.RDONLY, 0)
	if err != nil {
		return false, err
	}
	defer m.Unmap()

	end := offset + int64(len(want))
	if end > int64(len(m)) {
		return false, nil
	}
	return bytes.Equal(m[offset:end], want), nil
}

// CheckChunkBounds is a defensive re-statement of spec.md §4.C's "copying
// more than the chunk's remaining bytes is a fatal invariant breach",
// called by the last-page capture math in replication.Replicator before
// every copy out of a freshly written chunk.
func CheckChunkBounds(have, want int) {
	if want > have {
		panic(xerrors.Breach("logfile: last-page copy wants %d bytes but only %d remain", want, have))
	}
}
