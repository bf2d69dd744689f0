package key

import "github.com/pkg/errors"

// ErrTypeMismatch is returned when a segment is decoded against a type
// other than the one it was encoded with.
var ErrTypeMismatch = errors.New("key: type mismatch")

// ErrUnderflow is returned when a decode reads past the end of the
// encoded buffer.
var ErrUnderflow = errors.New("key: underflow")
