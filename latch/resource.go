// Package latch implements SharedResource (component C3): a
// multi-reader/single-writer claim with claim counting, a status-bit
// word kept separate from the lock state, and a monotonic generation
// counter for optimistic version checks.
package latch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// DefaultTimeout is the claim timeout used when callers pass 0.
const DefaultTimeout = 60 * time.Second

// maxClaims bounds the number of simultaneous read claims a resource
// can hold, mirroring the source material's 15-bit claim-count field.
const maxClaims = 1<<15 - 1

// Owner identifies the logical claim holder (a transaction, worker, or
// goroutine-local token). Go has no native thread identity, so callers
// supply one; 0 means "no owner" and must never be used as a real
// owner token.
type Owner int64

// StatusBit is one of the non-lock status flags a SharedResource
// carries (spec.md §3/§4.3). These are stored on an atomic word
// distinct from the claim/writer state so that status changes never
// race with, or need to take, the claim machinery.
type StatusBit uint32

const (
	StatusValid StatusBit = 1 << iota
	StatusDirty
	StatusDeleted
	StatusStructure
	StatusTransient
	StatusTouched
	StatusSuspended
	StatusClosing
	StatusFixed
)

// SharedResource is a multi-reader/single-writer latch with claim
// counting, recursive write claims, upgrade/downgrade, and a separate
// status-bit word and generation counter.
//
// The lock itself is implemented over a golang.org/x/sync/semaphore.Weighted
// with capacity maxClaims: a read claim acquires 1 unit of weight, a
// write claim acquires the resource's FULL remaining capacity (which
// is only possible when no claim, read or write, is outstanding).
// Weighted's own waiter queue already serves requests in arrival order
// except when capacity is free and no older waiter is queued, which is
// exactly the non-strict FIFO fairness spec.md §4.3 calls for: a writer
// blocked behind churning readers is never jumped by a fresh reader
// once it is queued.
type SharedResource struct {
	sem *semaphore.Weighted

	claimCount atomic.Int32 // logical claims currently held (readers, or 1 per write nesting level collapsed to depth bookkeeping below)
	writer     atomic.Bool
	owner      atomic.Int64 // Owner of the current write claim; 0 when none
	writeDepth atomic.Int32 // recursive write-claim nesting

	status     atomic.Uint32
	generation atomic.Uint64
}

// New returns an unclaimed SharedResource with status 0.
func New() *SharedResource {
	return &SharedResource{sem: semaphore.NewWeighted(maxClaims)}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// ReadClaim acquires a shared (read) claim, blocking up to timeout (or
// DefaultTimeout if timeout <= 0). It succeeds immediately if the
// resource has no writer, or if owner already holds the write claim
// (a write claim implicitly grants read access to its own owner).
//
// A read claim taken by the current write owner consumes no
// additional semaphore weight: it is accounted as another write-claim
// nesting level (released the same way a recursive WriteClaim is), so
// that Release never needs the caller to remember which flavor of
// claim it is giving up.
func (r *SharedResource) ReadClaim(ctx context.Context, owner Owner, timeout time.Duration) error {
	if r.writer.Load() && Owner(r.owner.Load()) == owner && owner != 0 {
		r.writeDepth.Add(1)
		r.claimCount.Add(1)
		return nil
	}
	cctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := r.sem.Acquire(cctx, 1); err != nil {
		return ErrTimeout
	}
	r.claimCount.Add(1)
	return nil
}

// ErrNoOwner is returned by WriteClaim/Upgrade when called with the
// zero Owner: write claims must be individually identifiable so a
// later recursive claim or Release can be matched to them.
var ErrNoOwner = errors.New("latch: write claim requires a non-zero owner")

// WriteClaim acquires an exclusive (write) claim. If owner already
// holds the write claim, this is a recursive acquire: it succeeds
// immediately and increments the nesting depth without taking any
// additional semaphore weight.
func (r *SharedResource) WriteClaim(ctx context.Context, owner Owner, timeout time.Duration) error {
	if owner == 0 {
		return ErrNoOwner
	}
	if r.writer.Load() && Owner(r.owner.Load()) == owner && owner != 0 {
		r.writeDepth.Add(1)
		r.claimCount.Add(1)
		return nil
	}
	cctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := r.sem.Acquire(cctx, maxClaims); err != nil {
		return ErrTimeout
	}
	r.writer.Store(true)
	r.owner.Store(int64(owner))
	r.writeDepth.Store(1)
	r.claimCount.Add(1)
	return nil
}

// Upgrade converts a previously granted read claim held by owner into
// a write claim, succeeding iff owner's is the only outstanding claim
// and no writer is set. On failure it returns false and leaves the
// resource's state unchanged.
func (r *SharedResource) Upgrade(ctx context.Context, owner Owner, timeout time.Duration) bool {
	if owner == 0 {
		return false
	}
	if r.writer.Load() || r.claimCount.Load() != 1 {
		return false
	}
	cctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := r.sem.Acquire(cctx, maxClaims-1); err != nil {
		return false
	}
	if r.writer.Load() || r.claimCount.Load() != 1 {
		// Lost the race between the check above and acquiring the rest
		// of the capacity; give the weight back and report failure.
		r.sem.Release(maxClaims - 1)
		return false
	}
	r.writer.Store(true)
	r.owner.Store(int64(owner))
	r.writeDepth.Store(1)
	return true
}

// Downgrade converts a held write claim back to a read claim while
// retaining the caller's claim, unblocking any waiting readers. It is
// a no-op error if owner does not hold the outermost write claim.
func (r *SharedResource) Downgrade(owner Owner) error {
	if !r.writer.Load() || Owner(r.owner.Load()) != owner {
		return ErrNotHeld
	}
	if r.writeDepth.Load() != 1 {
		return ErrNotHeld
	}
	r.writer.Store(false)
	r.owner.Store(0)
	r.writeDepth.Store(0)
	r.sem.Release(maxClaims - 1)
	return nil
}

// Release gives up one claim previously granted to owner. If owner is
// the current write owner, one write-claim nesting level is released;
// for any other owner value (including 0) one plain read claim is
// released. When the releasing claim was the last outstanding write-claim
// nesting level (including owner-reentrant read claims folded into
// it), the writer flag is cleared and the full capacity returns to the
// semaphore, waking the next waiter.
func (r *SharedResource) Release(owner Owner) error {
	if r.writer.Load() && Owner(r.owner.Load()) == owner && owner != 0 {
		depth := r.writeDepth.Add(-1)
		r.claimCount.Add(-1)
		if depth == 0 {
			r.writer.Store(false)
			r.owner.Store(0)
			r.sem.Release(maxClaims)
		}
		return nil
	}
	r.claimCount.Add(-1)
	r.sem.Release(1)
	return nil
}

// ClaimCount returns the number of claims currently outstanding.
func (r *SharedResource) ClaimCount() int32 { return r.claimCount.Load() }

// IsWriter reports whether any write claim is currently held.
func (r *SharedResource) IsWriter() bool { return r.writer.Load() }

// Owner returns the current write-claim owner, or 0 if none.
func (r *SharedResource) Owner() Owner { return Owner(r.owner.Load()) }

// IsAvailable reports whether a write claim from a non-owning caller
// could presently succeed without blocking: no claim, read or write,
// is outstanding, and the resource is not marked closing. This
// resolves the source material's ambiguous, inverted-looking
// UNAVAILABLE_MASK check by defining IsAvailable to mean exactly what
// it says.
func (r *SharedResource) IsAvailable() bool {
	return r.claimCount.Load() == 0 && !r.HasStatus(StatusClosing)
}

// SetStatus atomically ORs mask into the status word.
func (r *SharedResource) SetStatus(mask StatusBit) {
	r.status.Or(uint32(mask))
}

// ClearStatus atomically clears mask from the status word.
func (r *SharedResource) ClearStatus(mask StatusBit) {
	r.status.And(^uint32(mask))
}

// HasStatus reports whether every bit in mask is currently set.
func (r *SharedResource) HasStatus(mask StatusBit) bool {
	return r.status.Load()&uint32(mask) == uint32(mask)
}

// Status returns the full status word.
func (r *SharedResource) Status() StatusBit {
	return StatusBit(r.status.Load())
}

// Generation returns the current generation counter, for optimistic
// version checks by readers that do not hold a claim.
func (r *SharedResource) Generation() uint64 {
	return r.generation.Load()
}

// Touch bumps the generation counter. Callers invoke this after
// mutating the content a write claim guards, so that readers doing
// optimistic version checks (comparing a Generation() read before and
// after their own work) can detect the change.
func (r *SharedResource) Touch() uint64 {
	return r.generation.Add(1)
}
