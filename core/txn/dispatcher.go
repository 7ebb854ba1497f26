// Package txn implements the fair, reentrant, mixed shared/exclusive permit
// arbiter that admits transactions onto the storage engine under a fixed
// concurrency budget (spec.md §4.B).
//
// All state lives behind a single mutex with a condition variable for
// waiting, per spec.md §5: acquired permits, the monotonic ticket counter,
// the per-thread held-permits map, and the two FIFO ticket queues
// (regularQueue, exclusiveQueue). A waiter is admitted only once it is both
// at the head of its queue and the permit budget satisfies its request; an
// exclusive waiter stuck at the head of the regular queue with an unmet
// budget "promotes" itself to the exclusive queue so shared traffic can keep
// draining against it.
package txn

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/emberstore/kernel/internal/xerrors"
	"github.com/emberstore/kernel/internal/xlog"
	"github.com/emberstore/kernel/internal/xmetrics"
)

// Dispatcher gates admission of shared/exclusive transactions under a fixed
// permit budget. The zero value is not usable; construct with New.
type Dispatcher[T comparable] struct {
	mu   sync.Mutex
	cond *sync.Cond

	capacity    int
	acquired    int
	nextTicket  uint64
	held        map[T]int
	ticketOwner map[uint64]T

	regularQueue   []uint64
	exclusiveQueue []uint64

	log *xlog.Logger

	MetricsAdmitted xmetrics.Meter
	MetricsReleased xmetrics.Meter
	MetricsPromoted xmetrics.Meter
	MetricsTimedOut xmetrics.Meter
}

// New constructs a Dispatcher with the given fixed permit capacity.
// capacity < 1 is an invariant breach (spec.md §7): it panics immediately,
// since it can only ever be a construction-time programmer error.
func New[T comparable](capacity int) *Dispatcher[T] {
	if capacity < 1 {
		panic(xerrors.Breach("txn: capacity must be >= 1, got %d", capacity))
	}
	d := &Dispatcher[T]{
		capacity:    capacity,
		held:        make(map[T]int),
		ticketOwner: make(map[uint64]T),
		log:         xlog.New("component", "txn.Dispatcher"),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// AvailablePermits returns capacity - acquired under the lock.
func (d *Dispatcher[T]) AvailablePermits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capacity - d.acquired
}

// Waiters returns the de-duplicated set of tokens currently queued in either
// queue. Debug/metrics introspection only; never used on an admission path.
func (d *Dispatcher[T]) Waiters() []T {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := mapset.NewThreadUnsafeSet()
	for _, tok := range d.ticketOwner {
		set.Add(tok)
	}
	out := make([]T, 0, set.Cardinality())
	for v := range set.Iter() {
		out = append(out, v.(T))
	}
	return out
}

func removeTicket(q []uint64, t uint64) []uint64 {
	for i, v := range q {
		if v == t {
			return append(q[:i], q[i+1:]...)
		}
	}
	return q
}

func headIs(q []uint64, t uint64) bool {
	return len(q) > 0 && q[0] == t
}

// AcquireShared blocks until a permit is available and token is at the head
// of the regular queue, then charges one permit to token.
func (d *Dispatcher[T]) AcquireShared(ctx context.Context, token T) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.held[token] >= d.capacity {
		return xerrors.Breach("txn: thread already holds capacity (%d) permits", d.capacity)
	}

	ticket := d.nextTicket
	d.nextTicket++
	d.ticketOwner[ticket] = token
	d.regularQueue = append(d.regularQueue, ticket)

	stop := d.watchCtx(ctx)
	defer stop()

	for {
		if ctx != nil && ctx.Err() != nil {
			d.regularQueue = removeTicket(d.regularQueue, ticket)
			delete(d.ticketOwner, ticket)
			d.cond.Broadcast()
			return xerrors.Breach("txn: acquireShared interrupted: %v", ctx.Err())
		}
		if headIs(d.regularQueue, ticket) && d.capacity-d.acquired >= 1 {
			d.regularQueue = removeTicket(d.regularQueue, ticket)
			delete(d.ticketOwner, ticket)
			d.acquired++
			d.held[token]++
			d.MetricsAdmitted.Mark(1)
			d.cond.Broadcast()
			return nil
		}
		d.cond.Wait()
	}
}

// AcquireExclusive blocks until capacity - held[token] permits can be taken,
// then charges that many permits to token and returns the count.
func (d *Dispatcher[T]) AcquireExclusive(ctx context.Context, token T) (int, error) {
	return d.acquireExclusive(ctx, token, false, 0)
}

// TryAcquireExclusive behaves like AcquireExclusive but is bounded by
// timeout and refuses to promote into the exclusive queue if that queue is
// already non-empty, returning (0, nil) immediately in that case (spec.md
// §4.B's "try-acquire contention rule").
func (d *Dispatcher[T]) TryAcquireExclusive(ctx context.Context, token T, timeout time.Duration) (int, error) {
	return d.acquireExclusive(ctx, token, true, timeout)
}

func (d *Dispatcher[T]) acquireExclusive(ctx context.Context, token T, bounded bool, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	held := d.held[token]
	if held > d.capacity {
		return 0, xerrors.Breach("txn: thread holds %d permits, exceeding capacity %d", held, d.capacity)
	}
	need := d.capacity - held
	if need == 0 {
		// Already fully exclusive across its own open transactions: nothing
		// more to grant.
		return 0, nil
	}

	var deadline time.Time
	if bounded {
		deadline = time.Now().Add(timeout)
	}

	ticket := d.nextTicket
	d.nextTicket++
	d.ticketOwner[ticket] = token
	d.regularQueue = append(d.regularQueue, ticket)
	inExclusiveQueue := false

	stop := d.watchCtx(ctx)
	defer stop()
	var timer *time.Timer
	if bounded {
		timer = time.AfterFunc(timeout, func() {
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		})
		defer timer.Stop()
	}

	for {
		if ctx != nil && ctx.Err() != nil {
			d.removeFromBothQueues(ticket)
			d.cond.Broadcast()
			return 0, xerrors.Breach("txn: acquireExclusive interrupted: %v", ctx.Err())
		}
		if bounded && !time.Now().Before(deadline) {
			d.removeFromBothQueues(ticket)
			d.MetricsTimedOut.Mark(1)
			d.cond.Broadcast()
			return 0, nil
		}

		if !inExclusiveQueue {
			if headIs(d.regularQueue, ticket) {
				if d.capacity-d.acquired >= need {
					d.regularQueue = removeTicket(d.regularQueue, ticket)
					delete(d.ticketOwner, ticket)
					d.acquired += need
					d.held[token] = d.capacity
					d.MetricsAdmitted.Mark(1)
					d.cond.Broadcast()
					return need, nil
				}
				// Budget not yet satisfied at head: promote, unless this is
				// a bounded try-acquire and the exclusive queue already has
				// a waiter (contention rule: refuse immediately).
				if bounded && len(d.exclusiveQueue) > 0 {
					d.regularQueue = removeTicket(d.regularQueue, ticket)
					delete(d.ticketOwner, ticket)
					d.cond.Broadcast()
					return 0, nil
				}
				d.regularQueue = removeTicket(d.regularQueue, ticket)
				d.exclusiveQueue = append(d.exclusiveQueue, ticket)
				inExclusiveQueue = true
				d.MetricsPromoted.Mark(1)
				d.cond.Broadcast()
				continue
			}
		} else {
			if headIs(d.exclusiveQueue, ticket) && d.capacity-d.acquired >= need {
				d.exclusiveQueue = removeTicket(d.exclusiveQueue, ticket)
				delete(d.ticketOwner, ticket)
				d.acquired += need
				d.held[token] = d.capacity
				d.MetricsAdmitted.Mark(1)
				d.cond.Broadcast()
				return need, nil
			}
		}
		d.cond.Wait()
	}
}

func (d *Dispatcher[T]) removeFromBothQueues(ticket uint64) {
	d.regularQueue = removeTicket(d.regularQueue, ticket)
	d.exclusiveQueue = removeTicket(d.exclusiveQueue, ticket)
	delete(d.ticketOwner, ticket)
}

// Release returns permits held by token, removing its entry once it reaches
// zero. Releasing more than held is a fatal programmer error (spec.md §7).
func (d *Dispatcher[T]) Release(token T, permits int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, ok := d.held[token]
	if !ok || permits > cur {
		return xerrors.Breach("txn: release of %d permits exceeds %d held by thread", permits, cur)
	}
	cur -= permits
	if cur == 0 {
		delete(d.held, token)
	} else {
		d.held[token] = cur
	}
	d.acquired -= permits
	d.MetricsReleased.Mark(1)
	d.cond.Broadcast()
	return nil
}

// watchCtx spawns a goroutine that wakes every waiter when ctx is
// cancelled, so the uninterruptible condition-variable wait can observe
// cancellation promptly. It returns a stop function to release the
// goroutine once the caller is done waiting.
func (d *Dispatcher[T]) watchCtx(ctx context.Context) func() {
	if ctx == nil || ctx.Done() == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}
