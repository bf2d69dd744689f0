package latch

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// TestMRSWExclusion is spec.md property 5: no state in which a writer
// is set and the claim count exceeds 1 unless the excess claims belong
// to the writer itself (recursive write / owner read).
func TestMRSWExclusion(t *testing.T) {
	r := New()
	ctx := context.Background()
	const owner Owner = 1

	if err := r.WriteClaim(ctx, owner, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := r.WriteClaim(ctx, owner, time.Second); err != nil {
		t.Fatalf("recursive write claim failed: %v", err)
	}
	if err := r.ReadClaim(ctx, owner, time.Second); err != nil {
		t.Fatalf("owner read claim failed: %v", err)
	}
	if r.ClaimCount() != 3 {
		t.Fatalf("claim count = %d, want 3", r.ClaimCount())
	}
	if !r.IsWriter() || r.Owner() != owner {
		t.Fatal("writer state lost")
	}

	var other Owner = 2
	otherCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := r.ReadClaim(otherCtx, other, 20*time.Millisecond); err == nil {
		t.Fatal("a non-owner read claim must block while a writer is set")
	}

	if err := r.Release(owner); err != nil {
		t.Fatal(err)
	}
	if err := r.Release(owner); err != nil {
		t.Fatal(err)
	}
	if !r.IsWriter() {
		t.Fatal("writer should still be held: one claim level remains")
	}
	if err := r.Release(owner); err != nil {
		t.Fatal(err)
	}
	if r.IsWriter() {
		t.Fatal("writer should have been released")
	}
	if r.ClaimCount() != 0 {
		t.Fatalf("claim count = %d, want 0", r.ClaimCount())
	}
}

// TestUpgrade is spec.md property 7: Upgrade succeeds iff exactly one
// read claim is held by the upgrading owner; otherwise it fails
// without mutation.
func TestUpgrade(t *testing.T) {
	r := New()
	ctx := context.Background()
	const owner Owner = 7

	if err := r.ReadClaim(ctx, owner, time.Second); err != nil {
		t.Fatal(err)
	}
	if !r.Upgrade(ctx, owner, time.Second) {
		t.Fatal("upgrade with sole read claim should succeed")
	}
	if !r.IsWriter() || r.Owner() != owner {
		t.Fatal("upgrade did not install a write claim")
	}
	if err := r.Release(owner); err != nil {
		t.Fatal(err)
	}

	r2 := New()
	const a, b Owner = 1, 2
	if err := r2.ReadClaim(ctx, a, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := r2.ReadClaim(ctx, b, time.Second); err != nil {
		t.Fatal(err)
	}
	claimsBefore := r2.ClaimCount()
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if r2.Upgrade(shortCtx, a, 20*time.Millisecond) {
		t.Fatal("upgrade with a concurrent second read claim must fail")
	}
	if r2.IsWriter() {
		t.Fatal("failed upgrade must not install a writer")
	}
	if r2.ClaimCount() != claimsBefore {
		t.Fatalf("failed upgrade mutated claim count: %d vs %d", r2.ClaimCount(), claimsBefore)
	}
}

// TestTimeout is spec.md property 8: after a claim times out, the
// claim count is unchanged and the caller holds no claim.
func TestTimeout(t *testing.T) {
	r := New()
	ctx := context.Background()
	const owner Owner = 1
	if err := r.WriteClaim(ctx, owner, time.Second); err != nil {
		t.Fatal(err)
	}

	before := r.ClaimCount()
	const other Owner = 2
	err := r.ReadClaim(ctx, other, 100*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if r.ClaimCount() != before {
		t.Fatalf("claim count changed after timeout: %d vs %d", r.ClaimCount(), before)
	}
}

// TestIsAvailable checks the explicit definition resolving the open
// question on IsAvailable: true iff no claim is outstanding and the
// resource is not marked closing.
func TestIsAvailable(t *testing.T) {
	r := New()
	ctx := context.Background()
	const owner Owner = 1

	if !r.IsAvailable() {
		t.Fatal("a fresh resource should be available")
	}

	if err := r.ReadClaim(ctx, owner, time.Second); err != nil {
		t.Fatal(err)
	}
	if r.IsAvailable() {
		t.Fatal("resource with an outstanding read claim must not be available")
	}
	if err := r.Release(owner); err != nil {
		t.Fatal(err)
	}
	if !r.IsAvailable() {
		t.Fatal("resource should be available again once its only claim is released")
	}

	r.SetStatus(StatusClosing)
	if r.IsAvailable() {
		t.Fatal("a closing resource must not be available even with no outstanding claims")
	}
}

// TestFairness is spec.md property 6: under contention, a queued
// writer is not starved indefinitely by churning readers.
func TestFairness(t *testing.T) {
	r := New()
	ctx := context.Background()
	const holder Owner = 100

	if err := r.ReadClaim(ctx, holder, time.Second); err != nil {
		t.Fatal(err)
	}

	writerDone := make(chan struct{})
	const writer Owner = 200
	go func() {
		if err := r.WriteClaim(ctx, writer, 5*time.Second); err != nil {
			t.Error(err)
		}
		close(writerDone)
	}()
	// Give the writer time to enqueue behind the held read claim before
	// readers start churning.
	time.Sleep(20 * time.Millisecond)

	stop := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		owner := Owner(300 + i)
		g.Go(func() error {
			for {
				select {
				case <-stop:
					return nil
				default:
				}
				rctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
				err := r.ReadClaim(rctx, owner, 10*time.Millisecond)
				cancel()
				if err == nil {
					r.Release(owner)
				}
			}
		})
	}

	// Let the readers churn, then give up the held read claim: the
	// queued writer must get the latch ahead of the churning readers.
	time.Sleep(20 * time.Millisecond)
	r.Release(holder)

	select {
	case <-writerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writer starved by churning readers")
	}
	close(stop)
	_ = g.Wait()
	r.Release(writer)
}
