// Package replication implements the Log Page Replicator: an asynchronous
// streaming file writer that downloads an object from a remote blob store
// (core/replication/objectsource.ChunkSource) into a local file
// (core/replication/logfile.Writer) while opportunistically capturing the
// trailing "last page" bytes needed by the in-memory log tail.
package replication

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/emberstore/kernel/core/replication/logfile"
	"github.com/emberstore/kernel/core/replication/objectsource"
	"github.com/emberstore/kernel/internal/xerrors"
	"github.com/emberstore/kernel/internal/xlog"
	"github.com/emberstore/kernel/internal/xmetrics"
)

// State is one point in the replicator's lifecycle.
type State int

const (
	Idle State = iota
	Writing
	Closing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Writing:
		return "WRITING"
	case Closing:
		return "CLOSING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// WriteResult is what Complete returns once the download has settled.
type WriteResult struct {
	BytesWritten          int64
	LastPageBytesCaptured int64
}

// Replicator drives one single-shot download of a remote object into a
// local file, subscribing to the chunk source at a back-pressured demand of
// 1: it requests the next chunk only after the previous write has landed.
// A binary semaphore (weight 1) is the mutual-exclusion token spec.md §4.C
// describes serializing the chunk write, Complete, and the end-of-stream
// close.
type Replicator struct {
	mu    sync.Mutex
	state State

	source  objectsource.ChunkSource
	writer  *logfile.Writer
	token   *semaphore.Weighted
	limiter *rate.Limiter

	contentLength int64
	position      int64

	lastPageStart   int64
	lastPage        []byte
	lastPageWritten int64

	done chan struct{}
	err  error

	log *xlog.Logger

	MetricsBytesWritten xmetrics.Meter
}

// New creates a Replicator in the Idle state, downloading from source.
func New(source objectsource.ChunkSource) *Replicator {
	return &Replicator{
		state:  Idle,
		source: source,
		token:  semaphore.NewWeighted(1),
		log:    xlog.New("component", "replication.Replicator"),
	}
}

// WithRateLimit caps sustained download throughput at limiter's rate.
// Absent a limiter, chunks are written as fast as they arrive, which is
// the default if this is never called.
func (r *Replicator) WithRateLimit(limiter *rate.Limiter) *Replicator {
	r.mu.Lock()
	r.limiter = limiter
	r.mu.Unlock()
	return r
}

// VerifyTail memory-maps the destination file and confirms that the bytes
// at [offset, offset+len(want)) match want. Test/debug only: never called on
// the Complete hot path.
func (r *Replicator) VerifyTail(offset int64, want []byte) (bool, error) {
	r.mu.Lock()
	w := r.writer
	r.mu.Unlock()
	if w == nil {
		return false, xerrors.Breach("replication: VerifyTail called before OnStream")
	}
	return w.VerifyTail(offset, want)
}

// State returns the replicator's current lifecycle state.
func (r *Replicator) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnStream opens ref against the source and starts the asynchronous
// download into dest, a Writer whose file the caller already created
// exclusively with logfile.NewWriter. lastPage, if
// non-nil, is filled with bytes [lastPageStart, lastPageStart+len(lastPage))
// of the downloaded object as they're written; it must not be read until
// Complete returns.
func (r *Replicator) OnStream(ctx context.Context, ref string, dest *logfile.Writer, lastPageStart int64, lastPage []byte) error {
	r.mu.Lock()
	if r.state != Idle {
		st := r.state
		r.mu.Unlock()
		return xerrors.Breach("replication: OnStream called in state %s", st)
	}
	r.state = Writing
	r.writer = dest
	r.lastPageStart = lastPageStart
	r.lastPage = lastPage
	r.done = make(chan struct{})
	r.mu.Unlock()

	contentLength, err := r.source.Open(ctx, ref)
	if err != nil {
		r.onException(err)
		return err
	}
	r.mu.Lock()
	r.contentLength = contentLength
	r.mu.Unlock()

	go r.pump(ctx)
	return nil
}

// pump is the single-producer consumption loop: Next blocks for the next
// chunk (demand of 1), the chunk is written under the token, and the loop
// repeats until EOF or an error.
func (r *Replicator) pump(ctx context.Context) {
	for {
		chunk, err := r.source.Next(ctx)
		if err == io.EOF {
			r.finish()
			return
		}
		if err != nil {
			r.onException(err)
			return
		}
		if err := r.writeChunk(ctx, chunk); err != nil {
			r.onException(err)
			return
		}
	}
}

func (r *Replicator) writeChunk(ctx context.Context, chunk []byte) error {
	r.mu.Lock()
	limiter := r.limiter
	r.mu.Unlock()
	if limiter != nil {
		if err := limiter.WaitN(ctx, len(chunk)); err != nil {
			return err
		}
	}

	if err := r.token.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer r.token.Release(1)

	n, offset, err := r.writer.WriteChunk(chunk)
	if err != nil {
		return err
	}
	r.captureLastPage(offset, chunk[:n])
	r.mu.Lock()
	r.position = offset + int64(n)
	r.MetricsBytesWritten.Mark(int64(n))
	r.mu.Unlock()
	return nil
}

// captureLastPage implements spec.md §4.C's last-page capture math: a
// successful write of w bytes landing at [position, position+w) is copied
// into lastPage wherever that range overlaps
// [lastPageStart, lastPageStart+len(lastPage)).
func (r *Replicator) captureLastPage(position int64, written []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastPage == nil {
		return
	}
	w := int64(len(written))
	end := position + w
	if end < r.lastPageStart {
		return
	}
	destOffset := position - r.lastPageStart
	if destOffset < 0 {
		destOffset = 0
	}
	skip := r.lastPageStart - position
	if skip < 0 {
		skip = 0
	}
	length := int64(len(r.lastPage)) - destOffset
	if remain := w - skip; remain < length {
		length = remain
	}
	if length <= 0 {
		return
	}
	logfile.CheckChunkBounds(int(w), int(skip+length))
	copy(r.lastPage[destOffset:destOffset+length], written[skip:skip+length])
	r.lastPageWritten += length
}

// finish implements the completion race for the normal (non-error) path:
// the token is acquired so no chunk write can be mid-flight, then the
// destination is force-synced and closed before the token is released.
func (r *Replicator) finish() {
	if err := r.token.Acquire(context.Background(), 1); err != nil {
		r.onException(err)
		return
	}
	err := r.writer.SyncClose()
	r.token.Release(1)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Done || r.state == Failed {
		// onException already settled the stream and closed done.
		return
	}
	if err != nil {
		r.state = Failed
		r.err = err
	} else {
		r.state = Done
	}
	close(r.done)
}

// onException implements spec.md §7's I/O failure path: the subscription is
// considered cancelled, the partial file is closed and deleted, and the
// error surfaces via Complete.
func (r *Replicator) onException(err error) {
	_ = r.token.Acquire(context.Background(), 1)
	abortErr := r.writer.Abort()
	r.token.Release(1)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Done || r.state == Failed {
		return
	}
	r.state = Failed
	r.err = err
	if abortErr != nil {
		r.log.Warn("abort after exception failed", "err", abortErr)
	}
	if r.done != nil {
		close(r.done)
	}
}

// OnException records an externally observed failure (e.g. the caller's own
// health check on the source), idempotent with respect to file cleanup.
func (r *Replicator) OnException(err error) {
	r.onException(err)
}

// Complete blocks until the download has settled (successfully or not),
// then returns the final byte counts. It is safe to call concurrently with
// an in-progress OnStream; Complete does not return until the pump's final
// action (sync+close, or abort) has completed.
func (r *Replicator) Complete(ctx context.Context) (WriteResult, error) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return WriteResult{}, xerrors.Breach("replication: Complete called before OnStream")
	}

	select {
	case <-done:
	case <-ctx.Done():
		return WriteResult{}, ctx.Err()
	}

	// The final action releases the token before signalling done, so this
	// acquire mirrors spec.md §4.C's literal completion protocol. After an
	// external OnException the pump may still be writing a chunk, and the
	// acquire then waits for that write to finish.
	if err := r.token.Acquire(context.Background(), 1); err != nil {
		return WriteResult{}, err
	}
	r.token.Release(1)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Failed {
		return WriteResult{}, r.err
	}
	return WriteResult{
		BytesWritten:          r.position,
		LastPageBytesCaptured: r.lastPageWritten,
	}, nil
}
