package txn

import "time"

// Config bundles the environment-level knobs spec.md §6 attaches to the
// transaction dispatcher: the fixed simultaneous-transaction budget the
// Dispatcher enforces, and two timeouts. Only MaxSimultaneousTransactions is
// read by this module (core/engine passes it to New); the timeouts are
// carried for callers, and TryAcquireExclusive takes its timeout as an
// argument.
type Config struct {
	// MaxSimultaneousTransactions is the Dispatcher's total permit capacity.
	MaxSimultaneousTransactions int

	// GCTransactionAcquireTimeout is a timeout for a GC transaction's
	// exclusive acquisition. No code in this module reads it.
	GCTransactionAcquireTimeout time.Duration

	// EnvTxnReplayTimeout is a timeout associated with transaction replay.
	// No code in this module reads it.
	EnvTxnReplayTimeout time.Duration
}

// DefaultConfig mirrors the defaults spec.md §6 calls out for a freshly
// opened environment.
func DefaultConfig() Config {
	return Config{
		MaxSimultaneousTransactions: 64,
		GCTransactionAcquireTimeout: 10 * time.Second,
		EnvTxnReplayTimeout:         30 * time.Second,
	}
}
