package txn

// A caller-supplied thread/task identity is any comparable, hashable value —
// per spec.md §9, the dispatcher treats it as an opaque equality-comparable
// token and owns no mapping from executor tasks to such tokens; that mapping
// is the engine's responsibility.

// Descriptor is a transaction handle exposing the six accessors below. No
// code in this module calls them: Dispatcher's acquire methods take a
// token directly, and the caller chooses shared or exclusive admission.
type Descriptor[T comparable] interface {
	CreatingThread() T
	IsExclusive() bool
	SetExclusive(bool)
	WasCreatedExclusive() bool
	IsGCTransaction() bool
	SetAcquiredPermits(int)
}

// BasicDescriptor is a ready-to-use Descriptor implementation for callers
// that don't need to embed dispatcher bookkeeping into a larger transaction
// object.
type BasicDescriptor[T comparable] struct {
	Thread           T
	Exclusive        bool
	CreatedExclusive bool
	GCTransaction    bool
	AcquiredPermits  int
}

func (d *BasicDescriptor[T]) CreatingThread() T         { return d.Thread }
func (d *BasicDescriptor[T]) IsExclusive() bool         { return d.Exclusive }
func (d *BasicDescriptor[T]) SetExclusive(v bool)       { d.Exclusive = v }
func (d *BasicDescriptor[T]) WasCreatedExclusive() bool { return d.CreatedExclusive }
func (d *BasicDescriptor[T]) IsGCTransaction() bool     { return d.GCTransaction }
func (d *BasicDescriptor[T]) SetAcquiredPermits(n int)  { d.AcquiredPermits = n }
