// Package txn implements TransactionIndex (component C4): the MVCC
// commit/abort registry, write-write dependency detection, and
// long-running-transaction reduction described in spec.md §3/§4.4.
package txn

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const numBuckets = 64

type bucket struct {
	mu      sync.Mutex
	entries []*Status
}

// cacheEntry is one row of an ActiveTransactionCache snapshot.
type cacheEntry struct {
	ts uint64
	tc int64
}

// ActiveTransactionCache is the read-mostly, lock-free snapshot
// UpdateActiveTransactionCache installs: every non-free transaction's
// (ts, tc) pair, sorted by ts, plus the floor (the lowest ts of any
// still-active transaction at the time the snapshot was built).
type ActiveTransactionCache struct {
	entries []cacheEntry
	floor   uint64
	hasMin  bool
}

// Floor returns the lowest start timestamp of any transaction that was
// still active when this snapshot was built, or ok=false if none was.
func (c *ActiveTransactionCache) Floor() (ts uint64, ok bool) {
	return c.floor, c.hasMin
}

// Index is a sharded TransactionIndex: a hash map from ts mod N to a
// per-bucket slice of *Status, a free list for O(1) amortized
// registration, an aborted list and a long-running list for
// cleanup to walk without scanning every bucket, and an
// ActiveTransactionCache installed by atomic pointer swap.
type Index struct {
	buckets [numBuckets]bucket
	lastTs  uint64

	mu              sync.Mutex
	free            []*Status
	abortedList     []*Status
	longRunningList []*Status

	maxFreeListSize      int
	maxTotal             int
	longRunningThreshold int32

	currentCount     atomic.Int32
	freeCount        atomic.Int32
	abortedCount     atomic.Int32
	longRunningCount atomic.Int32
	droppedCount     atomic.Int32
	totalRegistered  atomic.Int64

	cache atomic.Pointer[ActiveTransactionCache]
}

// NewIndex returns an empty TransactionIndex. maxFreeListSize bounds
// the free list (entries that would overflow it are dropped and
// counted instead of recycled); longRunningThreshold is the open
// -version count past which cleanup reclassifies an entry as
// long-running. maxTotal, if > 0, is the hard cap on simultaneously
// registered (non-free) transactions; RegisterTransaction reports
// ErrResourceExhausted once it is reached.
func NewIndex(maxFreeListSize int, longRunningThreshold int32, maxTotal int) *Index {
	ix := &Index{
		maxFreeListSize:      maxFreeListSize,
		longRunningThreshold: longRunningThreshold,
		maxTotal:             maxTotal,
	}
	ix.cache.Store(&ActiveTransactionCache{})
	return ix
}

// RegisterTransaction allocates a fresh status with a strictly
// increasing ts, state ACTIVE, tc=0 and mvvCount=0, reusing a freed
// Status when one is available.
func (ix *Index) RegisterTransaction() (*Status, error) {
	if ix.maxTotal > 0 && int(ix.currentCount.Load())+int(ix.abortedCount.Load()) >= ix.maxTotal {
		return nil, ErrResourceExhausted
	}
	ts := atomic.AddUint64(&ix.lastTs, 1)

	var s *Status
	ix.mu.Lock()
	if n := len(ix.free); n > 0 {
		s = ix.free[n-1]
		ix.free[n-1] = nil
		ix.free = ix.free[:n-1]
		ix.freeCount.Add(-1)
	}
	ix.mu.Unlock()
	if s == nil {
		s = &Status{}
	}
	s.reset(ts)

	b := &ix.buckets[ts%numBuckets]
	b.mu.Lock()
	b.entries = append(b.entries, s)
	b.mu.Unlock()

	ix.currentCount.Add(1)
	ix.totalRegistered.Add(1)
	return s, nil
}

// Commit records the proposing commit timestamp tc on s. It must be
// called before NotifyCompleted, while s is still ACTIVE.
func (ix *Index) Commit(s *Status, tc uint64) error {
	if s.State() != StateActive {
		return ErrIllegalState
	}
	s.tc.Store(int64(tc))
	s.state.Store(int32(StateCommitted))
	return nil
}

// Abort marks s aborted, while s is still ACTIVE.
func (ix *Index) Abort(s *Status) error {
	if s.State() != StateActive {
		return ErrIllegalState
	}
	s.tc.Store(int64(Aborted))
	s.state.Store(int32(StateAborted))
	return nil
}

// NotifyCompleted finalizes s after Commit or Abort: it wakes any
// WWDependency waiters, decrements currentCount, and (for an aborted
// entry with no open versions) recycles s immediately. A committed
// entry, or an aborted entry with mvvCount > 0, stays reachable by ts
// for CommitStatus/WWDependency lookups until Cleanup decides it is
// safe to drop.
func (ix *Index) NotifyCompleted(s *Status, finalTc uint64) error {
	st := s.State()
	if st != StateCommitted && st != StateAborted {
		return ErrIllegalState
	}
	if st == StateCommitted {
		s.tc.Store(int64(finalTc))
	}
	close(s.done)
	ix.currentCount.Add(-1)

	if st == StateAborted {
		if s.MVVCount() > 0 {
			ix.mu.Lock()
			s.onAborted = true
			ix.abortedList = append(ix.abortedList, s)
			ix.mu.Unlock()
			ix.abortedCount.Add(1)
		} else {
			ix.recycle(s)
		}
	}
	return nil
}

// recycle removes s from its bucket and returns it to the free list
// (or counts it as dropped if the free list is full). Callers must not
// hold s's bucket lock.
func (ix *Index) recycle(s *Status) {
	ix.removeFromBucket(s)
	s.state.Store(int32(StateFree))
	ix.mu.Lock()
	if s.onAborted {
		ix.removeFromAbortedListLocked(s)
		s.onAborted = false
		ix.abortedCount.Add(-1)
	}
	if ix.maxFreeListSize <= 0 || len(ix.free) < ix.maxFreeListSize {
		ix.free = append(ix.free, s)
		ix.freeCount.Add(1)
	} else {
		ix.droppedCount.Add(1)
	}
	ix.mu.Unlock()
}

func (ix *Index) removeFromBucket(s *Status) {
	b := &ix.buckets[s.ts%numBuckets]
	b.mu.Lock()
	for i, e := range b.entries {
		if e == s {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

func (ix *Index) removeFromAbortedListLocked(s *Status) {
	for i, e := range ix.abortedList {
		if e == s {
			ix.abortedList = append(ix.abortedList[:i], ix.abortedList[i+1:]...)
			return
		}
	}
}

func (ix *Index) lookup(ts uint64) *Status {
	b := &ix.buckets[ts%numBuckets]
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.entries {
		if s.ts == ts {
			return s
		}
	}
	return nil
}

// CommitStatus returns the commit timestamp of the writer of vh, from
// the perspective of a reader whose own start timestamp is floorTs and
// whose own current step is step.
func (ix *Index) CommitStatus(vh VH, floorTs uint64, step uint32) CommitCode {
	ts := vh.TS()
	if ts == floorTs {
		if vh.Step() <= step {
			return Visible
		}
		return Uncommitted
	}
	s := ix.lookup(ts)
	if s == nil {
		// No longer tracked: a committed entry is only recycled once its
		// commit timestamp fell below every active floor, and an aborted
		// entry only once its open-version count reached zero, so any
		// version still carrying this vh is reported as visible.
		return Visible
	}
	switch s.State() {
	case StateActive:
		return Uncommitted
	case StateAborted:
		return Aborted
	case StateCommitted:
		return CommitCode(s.tc.Load())
	default:
		return Uncommitted
	}
}

// HasConcurrentTransaction reports whether at least one registered
// transaction with ts in (lowTs, highTs) is not yet committed, or
// committed after highTs.
func (ix *Index) HasConcurrentTransaction(lowTs, highTs uint64) bool {
	c := ix.cache.Load()
	for _, e := range c.entries {
		if e.ts <= lowTs || e.ts >= highTs {
			continue
		}
		if e.tc == 0 || e.tc > int64(highTs) {
			return true
		}
	}
	return false
}

// WWDependency is called on a write-write conflict: source is waiting
// to learn the fate of the transaction that wrote vh. If that
// transaction is still active, WWDependency blocks up to timeout for
// it to finalize. vh and source naming the same transaction is a
// caller error.
func (ix *Index) WWDependency(ctx context.Context, vh VH, source uint64, timeout time.Duration) (CommitCode, error) {
	ts := vh.TS()
	if ts == source {
		return Uncommitted, ErrSelfDependency
	}
	s := ix.lookup(ts)
	if s == nil {
		return Uncommitted, ErrIllegalArgument
	}
	if s.State() == StateActive {
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		select {
		case <-s.done:
		case <-cctx.Done():
			return Uncommitted, nil
		}
	}
	switch s.State() {
	case StateAborted:
		return Aborted, nil
	case StateCommitted:
		return CommitCode(s.tc.Load()), nil
	default:
		return Uncommitted, nil
	}
}

// UpdateActiveTransactionCache rebuilds and installs a fresh
// ActiveTransactionCache by scanning every bucket. It never blocks a
// reader of the previous snapshot: the old snapshot is simply replaced
// by an atomic pointer swap, so any reader mid-scan keeps using it.
func (ix *Index) UpdateActiveTransactionCache() {
	var entries []cacheEntry
	var floor uint64
	hasMin := false
	for i := range ix.buckets {
		b := &ix.buckets[i]
		b.mu.Lock()
		for _, s := range b.entries {
			st := s.State()
			if st == StateFree {
				continue
			}
			var tc int64
			switch st {
			case StateCommitted:
				tc = s.tc.Load()
			case StateAborted:
				tc = int64(Aborted)
			}
			entries = append(entries, cacheEntry{ts: s.ts, tc: tc})
			if st == StateActive && (!hasMin || s.ts < floor) {
				floor = s.ts
				hasMin = true
			}
		}
		b.mu.Unlock()
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts < entries[j].ts })
	ix.cache.Store(&ActiveTransactionCache{entries: entries, floor: floor, hasMin: hasMin})
}

// Cleanup computes the canonical form described in spec.md §4.4.4:
// committed entries whose commit timestamp is at or below the current
// floor are recycled; aborted entries whose open-version count has
// reached zero and whose ts is below the floor are recycled; entries
// whose open-version count exceeds longRunningThreshold are
// reclassified as long-running. Cleanup consults the most recent
// ActiveTransactionCache snapshot rather than recomputing the floor
// itself; callers should call UpdateActiveTransactionCache shortly
// before Cleanup for an up to date floor.
func (ix *Index) Cleanup() {
	c := ix.cache.Load()
	floor, hasFloor := c.Floor()

	for i := range ix.buckets {
		b := &ix.buckets[i]
		b.mu.Lock()
		kept := b.entries[:0]
		for _, s := range b.entries {
			drop := false
			switch s.State() {
			case StateCommitted:
				if s.tc.Load() >= 0 && (!hasFloor || uint64(s.tc.Load()) <= floor) {
					drop = true
				}
			case StateAborted:
				if s.MVVCount() == 0 && (!hasFloor || s.ts < floor) {
					drop = true
				}
			}
			if drop {
				s.state.Store(int32(StateFree))
				ix.mu.Lock()
				if s.onAborted {
					ix.removeFromAbortedListLocked(s)
					s.onAborted = false
					ix.abortedCount.Add(-1)
				}
				if s.longRunning.Load() {
					ix.removeFromLongRunningListLocked(s)
					s.longRunning.Store(false)
					ix.longRunningCount.Add(-1)
				}
				if ix.maxFreeListSize <= 0 || len(ix.free) < ix.maxFreeListSize {
					ix.free = append(ix.free, s)
					ix.freeCount.Add(1)
				} else {
					ix.droppedCount.Add(1)
				}
				ix.mu.Unlock()
				continue
			}
			if !s.longRunning.Load() && s.MVVCount() > ix.longRunningThreshold {
				s.longRunning.Store(true)
				ix.mu.Lock()
				ix.longRunningList = append(ix.longRunningList, s)
				ix.mu.Unlock()
				ix.longRunningCount.Add(1)
			}
			kept = append(kept, s)
		}
		b.entries = kept
		b.mu.Unlock()
	}
}

func (ix *Index) removeFromLongRunningListLocked(s *Status) {
	for i, e := range ix.longRunningList {
		if e == s {
			ix.longRunningList = append(ix.longRunningList[:i], ix.longRunningList[i+1:]...)
			return
		}
	}
}

// CurrentCount returns the number of ACTIVE entries.
func (ix *Index) CurrentCount() int32 { return ix.currentCount.Load() }

// FreeCount returns the number of entries on the free list.
func (ix *Index) FreeCount() int32 { return ix.freeCount.Load() }

// AbortedCount returns the number of ABORTED entries still retained
// (not yet recycled because their open-version count has not reached
// zero, or their ts has not fallen below the floor).
func (ix *Index) AbortedCount() int32 { return ix.abortedCount.Load() }

// LongRunningCount returns the number of entries currently classified
// as long-running.
func (ix *Index) LongRunningCount() int32 { return ix.longRunningCount.Load() }

// DroppedCount returns the number of entries that could not be
// recycled onto the free list because it was already at capacity.
func (ix *Index) DroppedCount() int32 { return ix.droppedCount.Load() }

// TotalRegistered returns the total number of transactions ever
// registered on this index, including recycled ones.
func (ix *Index) TotalRegistered() int64 { return ix.totalRegistered.Load() }
