// Package xmetrics mirrors the call-site shape of the teacher's
// metrics.Meter ("readMeter.Mark(n)") without depending on its (unavailable,
// non-third-party) metrics package. No metrics client library appears in the
// example corpus's go.mod files, so a minimal atomic-counter implementation
// is the faithful ambient substitute — see DESIGN.md.
package xmetrics

import "sync/atomic"

// Meter tracks a monotonically increasing count, such as bytes written/read
// or admission events. The zero value is ready to use.
type Meter struct {
	count int64
}

// Mark adds n to the meter's running total.
func (m *Meter) Mark(n int64) {
	atomic.AddInt64(&m.count, n)
}

// Count returns the meter's current total.
func (m *Meter) Count() int64 {
	return atomic.LoadInt64(&m.count)
}

// NilMeter is a shared, package-level Meter. It is an ordinary Meter: marks
// on it accumulate and are visible through Count like any other.
var NilMeter = &Meter{}
