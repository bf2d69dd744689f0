package txn

import "sync/atomic"

// TxnState is the lifecycle state of a TransactionStatus.
type TxnState int32

const (
	StateActive TxnState = iota
	StateCommitted
	StateAborted
	StateFree
)

func (s TxnState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateCommitted:
		return "COMMITTED"
	case StateAborted:
		return "ABORTED"
	case StateFree:
		return "FREE"
	default:
		return "UNKNOWN"
	}
}

// CommitCode is the return type of CommitStatus and WWDependency: a
// real commit timestamp when positive, one of the sentinels below
// otherwise. Sentinels are negative so they can never collide with a
// genuine (positive) timestamp.
type CommitCode int64

const (
	// Uncommitted means the writer is still active, or (for a
	// same-transaction query) a step the reader has not reached yet.
	Uncommitted CommitCode = -1
	// Aborted means the writer's transaction finalized with an abort.
	Aborted CommitCode = -2
	// Visible means "definitely visible regardless of numeric
	// comparison": returned for a reader's own writes at or before its
	// own step, and for versions whose transaction has already been
	// recycled because its commit timestamp fell below every floor.
	Visible CommitCode = -3
)

// Status is a single transaction's entry in a TransactionIndex:
// its start timestamp, its eventual commit timestamp (or an abort
// sentinel), lifecycle state, and the open-version count used to
// decide when an aborted entry can be recycled.
//
// Status values are pooled and reused across transactions (the free
// list); reset clears every field for the next tenant.
type Status struct {
	ts    uint64
	tc    atomic.Int64
	state atomic.Int32
	mvv   atomic.Int32
	step  atomic.Uint32

	longRunning atomic.Bool
	onAborted   bool // guarded by Index.mu; true while linked on Index.abortedList

	done chan struct{}
}

func (s *Status) reset(ts uint64) {
	s.ts = ts
	s.tc.Store(0)
	s.state.Store(int32(StateActive))
	s.mvv.Store(0)
	s.step.Store(0)
	s.longRunning.Store(false)
	s.onAborted = false
	s.done = make(chan struct{})
}

// TS returns the transaction's start timestamp.
func (s *Status) TS() uint64 { return s.ts }

// VH returns the version handle for step 0 of this transaction.
func (s *Status) VH() VH { return ts2vh(s.ts) }

// NextStep allocates the version handle for the next version this
// transaction writes, advancing its step counter.
func (s *Status) NextStep() VH {
	step := s.step.Add(1) - 1
	return ts2vh(s.ts).WithStep(step)
}

// State returns the current lifecycle state.
func (s *Status) State() TxnState { return TxnState(s.state.Load()) }

// MVVCount returns the number of open multi-version records this
// transaction has written and not yet had reaped.
func (s *Status) MVVCount() int32 { return s.mvv.Load() }

// IncMVV records one more open version written by this transaction.
func (s *Status) IncMVV() int32 { return s.mvv.Add(1) }

// DecMVV records that one of this transaction's open versions has been
// reaped (its record rewritten to no longer need this status).
func (s *Status) DecMVV() int32 { return s.mvv.Add(-1) }

// IsLongRunning reports whether cleanup has classified this entry as
// long-running (exceeding the index's longRunningThreshold).
func (s *Status) IsLongRunning() bool { return s.longRunning.Load() }
