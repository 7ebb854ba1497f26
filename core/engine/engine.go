// Package engine wires the Persistent 2-3 Tree Map, Transaction Dispatcher,
// Log Page Replicator and Link Table Facade into a single embedded storage
// engine entry point.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emberstore/kernel/core/linktable"
	"github.com/emberstore/kernel/core/linktable/store"
	"github.com/emberstore/kernel/core/replication"
	"github.com/emberstore/kernel/core/replication/logfile"
	"github.com/emberstore/kernel/core/replication/objectsource"
	"github.com/emberstore/kernel/core/tree23"
	"github.com/emberstore/kernel/core/tree23/history"
	"github.com/emberstore/kernel/core/txn"
	"github.com/emberstore/kernel/internal/xlog"
)

// Options configures a freshly opened Engine.
type Options struct {
	// Dir is the on-disk directory for the local log file and the link
	// table's durable store.
	Dir string

	TxnConfig txn.Config

	// HistoryDepth sizes the History tracker (values below 1 are raised to
	// 1). Engine itself does not record commits of Values into History.
	HistoryDepth int

	// LogMaxFileBytes bounds a single local log data file before the log
	// roles over to a new one.
	LogMaxFileBytes uint64

	// RemoteSource, if set, lets RecoverObject download a remote object
	// (e.g. a log snapshot shipped by another host) into the local log.
	// Nil disables recovery (local-only mode).
	RemoteSource objectsource.ChunkSource

	// LinkCacheBytes sizes the link table's front cache.
	LinkCacheBytes int
}

// DefaultOptions returns sane defaults for a standalone embedded instance.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:             dir,
		TxnConfig:       txn.DefaultConfig(),
		HistoryDepth:    64,
		LogMaxFileBytes: 2 << 30,
		LinkCacheBytes:  32 << 20,
	}
}

// Engine is the library's public entry point: a single value map governed by
// a transaction dispatcher, an append-only local log that can also take in
// objects downloaded from a remote source (RecoverObject), and a link table
// facade over the same concurrency/durability primitives.
type Engine[T comparable] struct {
	opts Options

	Values     *tree23.Map[any]
	History    *history.Tracker
	Dispatcher *txn.Dispatcher[T]
	Log        *logfile.File
	Links      *linktable.LinkTable[T]
	linkStore  *store.Store

	log *xlog.Logger
}

// Open constructs an Engine rooted at opts.Dir, opening its local log and
// link table store and replaying both to their last durable state.
func Open[T comparable](opts Options) (*Engine[T], error) {
	logDir := filepath.Join(opts.Dir, "log")
	lf, err := logfile.Open(logDir, "pages", opts.LogMaxFileBytes, false)
	if err != nil {
		return nil, err
	}

	linkDir := filepath.Join(opts.Dir, "links")
	linkStore, err := store.Open(linkDir, opts.LinkCacheBytes)
	if err != nil {
		lf.Close()
		return nil, err
	}

	dispatcher := txn.New[T](opts.TxnConfig.MaxSimultaneousTransactions)

	links, err := linktable.Open[T](linkStore, dispatcher)
	if err != nil {
		lf.Close()
		linkStore.Close()
		return nil, err
	}

	depth := opts.HistoryDepth
	if depth <= 0 {
		depth = 1
	}

	return &Engine[T]{
		opts:       opts,
		Values:     tree23.NewMap[any](),
		History:    history.NewTracker(depth),
		Dispatcher: dispatcher,
		Log:        lf,
		Links:      links,
		linkStore:  linkStore,
		log:        xlog.New("component", "engine.Engine"),
	}, nil
}

// BeginShared admits thread as a shared (reader or ordinary writer)
// transaction and returns a release function the caller must defer.
func (e *Engine[T]) BeginShared(ctx context.Context, thread T) (func(), error) {
	if err := e.Dispatcher.AcquireShared(ctx, thread); err != nil {
		return nil, err
	}
	return func() { e.Dispatcher.Release(thread, 1) }, nil
}

// BeginExclusive admits thread as an exclusive transaction, blocking until
// every other thread's permits are released, and returns a release function.
func (e *Engine[T]) BeginExclusive(ctx context.Context, thread T) (func(), error) {
	n, err := e.Dispatcher.AcquireExclusive(ctx, thread)
	if err != nil {
		return nil, err
	}
	return func() {
		if n > 0 {
			e.Dispatcher.Release(thread, n)
		}
	}, nil
}

// AppendPage durably records page as the next entry in the local log.
func (e *Engine[T]) AppendPage(ctx context.Context, pageIndex uint64, page []byte) error {
	return e.Log.Append(pageIndex, page)
}

// RecoverObject downloads ref from the configured remote source into a
// staging file, then appends its full contents as the next local log page.
// lastPageStart/lastPage optionally capture the trailing bytes of the
// object as they stream past, without a second read once the download
// settles; pass a nil lastPage to skip that capture.
//
// Returns ErrNoRemoteSource if Options.RemoteSource was never configured.
func (e *Engine[T]) RecoverObject(ctx context.Context, ref string, lastPageStart int64, lastPage []byte) (replication.WriteResult, error) {
	if e.opts.RemoteSource == nil {
		return replication.WriteResult{}, ErrNoRemoteSource
	}

	stagingDir := filepath.Join(e.opts.Dir, "recover")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return replication.WriteResult{}, err
	}
	stagingPath := filepath.Join(stagingDir, fmt.Sprintf("%d.download", e.Log.Pages()))

	w, err := logfile.NewWriter(stagingPath)
	if err != nil {
		return replication.WriteResult{}, err
	}

	rep := replication.New(e.opts.RemoteSource)
	if err := rep.OnStream(ctx, ref, w, lastPageStart, lastPage); err != nil {
		return replication.WriteResult{}, err
	}

	result, err := rep.Complete(ctx)
	if err != nil {
		return replication.WriteResult{}, err
	}
	defer os.Remove(stagingPath)

	data, err := os.ReadFile(stagingPath)
	if err != nil {
		return replication.WriteResult{}, err
	}
	if err := e.Log.Append(e.Log.Pages(), data); err != nil {
		return replication.WriteResult{}, err
	}
	return result, nil
}

// ErrNoRemoteSource is returned by RecoverObject when Options.RemoteSource
// was left unset at Open.
var ErrNoRemoteSource = fmt.Errorf("engine: no remote source configured")

// Close releases every resource the Engine opened.
func (e *Engine[T]) Close() error {
	var firstErr error
	if err := e.Log.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.linkStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
