// Package xerrors classifies the error kinds spec'd for the engine core:
// invariant breaches (fatal, non-recoverable), contention timeouts
// (recoverable, returned as values), and plain I/O failures (propagated
// unchanged after cleanup).
package xerrors

import (
	"fmt"
	"strings"

	"github.com/go-stack/stack"
)

// ErrTimeout is a sentinel for an operation bounded by a deadline that
// elapsed. No package in this module returns it at present; a timed-out
// TryAcquireExclusive reports 0 permits instead.
var ErrTimeout = fmt.Errorf("emberstore: operation timed out")

// InvariantBreach is a fatal, non-recoverable programmer error: releasing
// more permits than held, a zero-or-negative capacity, an unexpected chunk
// buffer length, and similar conditions the engine never expects to observe
// in correct operation. It carries a captured call stack so the first
// reported occurrence is actionable without a debugger attached.
type InvariantBreach struct {
	Msg   string
	Stack stack.CallStack
}

func (e *InvariantBreach) Error() string {
	return fmt.Sprintf("invariant breach: %s", e.Msg)
}

// Frames renders the captured call stack, most recent call first.
func (e *InvariantBreach) Frames() string {
	var b strings.Builder
	for i, f := range e.Stack {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%+v", f)
	}
	return b.String()
}

// Breach constructs an InvariantBreach with a formatted message and a call
// stack captured at the caller, skipping this helper's own frame.
func Breach(format string, args ...interface{}) *InvariantBreach {
	return &InvariantBreach{
		Msg:   fmt.Sprintf(format, args...),
		Stack: stack.Trace().TrimRuntime().TrimBelow(stack.Caller(1)),
	}
}
