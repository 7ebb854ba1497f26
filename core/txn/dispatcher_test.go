package txn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSharedAcquireRelease(t *testing.T) {
	d := New[string](4)
	require.NoError(t, d.AcquireShared(context.Background(), "a"))
	require.NoError(t, d.AcquireShared(context.Background(), "b"))
	require.Equal(t, 2, d.capacity-d.AvailablePermits())
	require.NoError(t, d.Release("a", 1))
	require.Equal(t, 1, d.capacity-d.AvailablePermits())
}

func TestSharedAcquireRejectsExceedingCapacity(t *testing.T) {
	d := New[string](1)
	require.NoError(t, d.AcquireShared(context.Background(), "a"))
	// a already holds the entire capacity as a single shared permit; a second
	// shared acquire by the same thread must fail rather than oversubscribe.
	err := d.AcquireShared(context.Background(), "a")
	require.Error(t, err)
}

// Scenario 1 (spec.md §8): three distinct threads each hold one shared
// permit of a four-permit dispatcher; a fourth thread's exclusive request
// blocks until all three release, then is granted all four permits.
func TestExclusiveWaitsForAllSharedHoldersThenTakesFull(t *testing.T) {
	d := New[string](4)
	ctx := context.Background()
	require.NoError(t, d.AcquireShared(ctx, "r1"))
	require.NoError(t, d.AcquireShared(ctx, "r2"))
	require.NoError(t, d.AcquireShared(ctx, "r3"))

	grantedCh := make(chan int, 1)
	go func() {
		n, err := d.AcquireExclusive(ctx, "writer")
		require.NoError(t, err)
		grantedCh <- n
	}()

	// Give the exclusive waiter time to enqueue and promote.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-grantedCh:
		t.Fatal("exclusive acquire must not complete while shared holders remain")
	default:
	}

	require.NoError(t, d.Release("r1", 1))
	require.NoError(t, d.Release("r2", 1))
	select {
	case <-grantedCh:
		t.Fatal("exclusive acquire must not complete until every shared holder releases")
	default:
	}
	require.NoError(t, d.Release("r3", 1))

	select {
	case n := <-grantedCh:
		require.Equal(t, 4, n)
	case <-time.After(time.Second):
		t.Fatal("exclusive acquire never completed")
	}
}

// Scenario 2 (spec.md §8): shared waiters are admitted in ticket (arrival)
// order once permits free up, not in wakeup order.
func TestSharedAdmissionIsFIFO(t *testing.T) {
	d := New[string](1)
	ctx := context.Background()
	require.NoError(t, d.AcquireShared(ctx, "holder"))

	order := make([]string, 0, 2)
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		require.NoError(t, d.AcquireShared(ctx, "first"))
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	}()
	time.Sleep(20 * time.Millisecond) // ensure "first" enqueues strictly before "second"
	go func() {
		defer wg.Done()
		require.NoError(t, d.AcquireShared(ctx, "second"))
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, d.Release("holder", 1))
	time.Sleep(20 * time.Millisecond) // let "first" be admitted before it releases
	require.NoError(t, d.Release("first", 1))
	wg.Wait()

	require.Equal(t, []string{"first", "second"}, order)
}

// Scenario 3 (spec.md §8): the try-acquire contention rule refuses to
// promote a second exclusive contender while one is already promoted,
// returning 0 immediately rather than waiting out its timeout.
func TestTryAcquireExclusiveContentionRule(t *testing.T) {
	d := New[string](2)
	ctx := context.Background()
	require.NoError(t, d.AcquireShared(ctx, "holder"))

	firstDone := make(chan struct{})
	go func() {
		n, err := d.TryAcquireExclusive(ctx, "first-writer", time.Second)
		require.NoError(t, err)
		require.Equal(t, 2, n)
		close(firstDone)
	}()
	// Let first-writer enqueue and promote into the exclusive queue.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	n, err := d.TryAcquireExclusive(ctx, "second-writer", 5*time.Second)
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Less(t, elapsed, 2*time.Second, "contention rule must refuse immediately, not wait out the timeout")

	require.NoError(t, d.Release("holder", 1))
	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("first-writer never completed")
	}
}

func TestTryAcquireExclusiveTimesOutWithoutContention(t *testing.T) {
	d := New[string](2)
	ctx := context.Background()
	require.NoError(t, d.AcquireShared(ctx, "holder"))

	start := time.Now()
	n, err := d.TryAcquireExclusive(ctx, "writer", 100*time.Millisecond)
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)

	require.NoError(t, d.Release("holder", 1))
}

func TestAcquireInterruptedByContextIsFatal(t *testing.T) {
	d := New[string](1)
	require.NoError(t, d.AcquireShared(context.Background(), "holder"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.AcquireShared(ctx, "waiter")
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("interrupted acquire never returned")
	}
}

func TestReleaseMoreThanHeldIsFatal(t *testing.T) {
	d := New[string](2)
	require.NoError(t, d.AcquireShared(context.Background(), "a"))
	err := d.Release("a", 5)
	require.Error(t, err)
}

func TestExclusiveNoOpWhenAlreadyFullyHeld(t *testing.T) {
	d := New[string](2)
	ctx := context.Background()
	n, err := d.AcquireExclusive(ctx, "writer")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n2, err := d.AcquireExclusive(ctx, "writer")
	require.NoError(t, err)
	require.Equal(t, 0, n2)
}

func TestWaiters(t *testing.T) {
	d := New[string](1)
	ctx := context.Background()
	require.NoError(t, d.AcquireShared(ctx, "holder"))

	done := make(chan struct{})
	go func() {
		_ = d.AcquireShared(ctx, "waiter")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	waiters := d.Waiters()
	require.Contains(t, waiters, "waiter")

	require.NoError(t, d.Release("holder", 1))
	<-done
}
