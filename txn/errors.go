package txn

import "github.com/pkg/errors"

// ErrIllegalState is returned by Commit/Abort/NotifyCompleted when the
// target status is not in the state the call requires.
var ErrIllegalState = errors.New("txn: illegal transaction state transition")

// ErrIllegalArgument is returned by WWDependency when the version
// handle's transaction was never registered (or has already been
// recycled for reuse).
var ErrIllegalArgument = errors.New("txn: version handle names an unknown transaction")

// ErrSelfDependency is returned by WWDependency when the caller asks a
// transaction to wait on itself.
var ErrSelfDependency = errors.New("txn: a transaction cannot wwDependency on itself")

// ErrResourceExhausted is returned by RegisterTransaction when the
// index's configured hard cap on live transactions is reached.
var ErrResourceExhausted = errors.New("txn: transaction index is at capacity")
