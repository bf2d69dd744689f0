package latch

import "github.com/pkg/errors"

// ErrTimeout is returned by ReadClaim/WriteClaim when the requested deadline
// elapses before the claim could be granted. It carries no side
// effect: the resource's claim count is unchanged and the caller holds
// no claim.
var ErrTimeout = errors.New("latch: claim timed out")

// ErrNotHeld is returned by Downgrade when the caller does not hold
// the outermost write claim.
var ErrNotHeld = errors.New("latch: caller does not hold the claim it is releasing")
