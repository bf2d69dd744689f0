// Package velox holds the small ambient utilities shared by every other
// package in the module: error wrapping, unique ID generation, a
// background-context marker, and a small generic set.
package velox

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Encoding is the base64 encoding NextUniqueID uses for unique,
// filesystem- and URL-safe identifiers.
var Encoding = base64.RawURLEncoding

var lastUniqueIDCounter uint64

const uniqueIDLen = 16

// NextUniqueID generates a unique ID using a monotonic counter prefix
// followed by random bytes, then base64-encodes the result.
func NextUniqueID() string {
	counter := Increment(&lastUniqueIDCounter)
	counterSize := binary.Size(counter)
	result := make([]byte, uniqueIDLen)
	binary.BigEndian.PutUint64(result, counter)
	if _, err := rand.Read(result[counterSize:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return Encoding.EncodeToString(result)
}

// Increment returns a value strictly greater than the previous value
// returned for prevPointer, derived from the current wall clock and
// bumped by at least one nanosecond when the clock doesn't advance.
// The journal allocates its LSNs from it, and NextUniqueID its counter
// prefix.
func Increment(prevPointer *uint64) uint64 {
	for {
		next := uint64(time.Now().UnixNano())
		previous := atomic.LoadUint64(prevPointer)
		if next <= previous {
			next = previous + 1
		}
		if atomic.CompareAndSwapUint64(prevPointer, previous, next) {
			return next
		}
	}
}

type backgroundKey int

var backgroundCtxKey backgroundKey

// IsBackground reports whether ctx was created with MakeBackgroundContext,
// i.e. whether the calling goroutine is an engine maintenance task
// (the transaction cleanup sweep) rather than a
// caller-initiated request. Background tasks log failures instead of
// propagating them to a waiting caller.
func IsBackground(ctx context.Context) bool {
	v, _ := ctx.Value(backgroundCtxKey).(bool)
	return v
}

// MakeBackgroundContext marks ctx as belonging to an engine maintenance task.
func MakeBackgroundContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, backgroundCtxKey, true)
}

// Set is a small generic set built on a map, used for cheap membership
// tests (the buffer pool's pinned keys). It is not safe for concurrent
// use; callers guard it with their own mutex.
type Set[K comparable] map[K]struct{}

func (s Set[K]) Add(k K)          { s[k] = struct{}{} }
func (s Set[K]) Del(k K)          { delete(s, k) }
func (s Set[K]) Has(k K) bool     { _, ok := s[k]; return ok }
func (s Set[K]) Len() int         { return len(s) }

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStack wraps err with a stack trace unless it already carries one.
// The volume and journal packages pass tkrzw failures through it;
// sentinel errors such as latch.ErrTimeout are returned unwrapped.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(stackTracer); ok {
		return err
	}
	return errors.WithStack(err)
}
