// Package key implements the order-preserving key codec (component C1):
// a mutable, single-owner byte buffer holding a sequence of typed
// segments, encoded so that lexicographic byte comparison of the
// encoded form equals logical tuple comparison of the decoded values.
package key

import "bytes"

// bound marks one segment's extent within buf: buf[start] is the tag
// byte, buf[end-1] is the terminator byte, buf[start:end] is the whole
// encoded segment.
type bound struct {
	start, end int
}

// Key is a mutable cursor over a sequence of order-preserving encoded
// segments. It is owned by exactly one goroutine at a time; publish a
// Key across goroutines by taking an independent copy with Bytes() or
// Clone().
type Key struct {
	buf    []byte
	bounds []bound
}

// New returns an empty key (depth 0).
func New() *Key {
	return &Key{}
}

// FromBytes parses a previously encoded buffer into a Key, validating
// segment structure as it goes. The input is copied; the Key does not
// alias it.
func FromBytes(buf []byte) (*Key, error) {
	bounds, err := scanBounds(buf)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	return &Key{buf: cp, bounds: bounds}, nil
}

func scanBounds(buf []byte) ([]bound, error) {
	var bounds []bound
	pos := 0
	for pos < len(buf) {
		start := pos
		tag := Kind(buf[pos])
		pos++
		if width, ok := tag.fixedWidth(); ok {
			if pos+width > len(buf) {
				return nil, ErrUnderflow
			}
			pos += width
		} else if tag == KindString {
			for {
				if pos >= len(buf) {
					return nil, ErrUnderflow
				}
				if buf[pos] == 0 {
					if pos+1 < len(buf) && buf[pos+1] == 0xFF {
						pos += 2
						continue
					}
					break
				}
				pos++
			}
		} else {
			return nil, ErrTypeMismatch
		}
		if pos >= len(buf) || buf[pos] != 0 {
			return nil, ErrUnderflow
		}
		pos++ // consume terminator
		bounds = append(bounds, bound{start, pos})
	}
	return bounds, nil
}

// Depth returns the number of segments currently held.
func (k *Key) Depth() int { return len(k.bounds) }

// EncodedLen returns the length in bytes of the encoded form.
func (k *Key) EncodedLen() int { return len(k.buf) }

// Append writes seg as a new trailing segment.
func (k *Key) Append(seg Segment) {
	start := len(k.buf)
	k.buf = append(k.buf, byte(seg.kind))
	k.buf = seg.appendValue(k.buf)
	k.buf = append(k.buf, 0)
	k.bounds = append(k.bounds, bound{start, len(k.buf)})
}

// To replaces the last segment with seg. If the key is empty, it is
// equivalent to Append.
func (k *Key) To(seg Segment) {
	if len(k.bounds) == 0 {
		k.Append(seg)
		return
	}
	last := k.bounds[len(k.bounds)-1]
	k.buf = k.buf[:last.start]
	k.bounds = k.bounds[:len(k.bounds)-1]
	k.Append(seg)
}

// Cut drops the last n segments.
func (k *Key) Cut(n int) error {
	if n < 0 || n > len(k.bounds) {
		return ErrUnderflow
	}
	if n == 0 {
		return nil
	}
	newDepth := len(k.bounds) - n
	if newDepth == 0 {
		k.buf = k.buf[:0]
	} else {
		k.buf = k.buf[:k.bounds[newDepth-1].end]
	}
	k.bounds = k.bounds[:newDepth]
	return nil
}

// DecodeAt decodes the segment at depth i.
func (k *Key) DecodeAt(i int) (Segment, error) {
	if i < 0 || i >= len(k.bounds) {
		return Segment{}, ErrUnderflow
	}
	b := k.bounds[i]
	tag := Kind(k.buf[b.start])
	seg, _, err := decodeValue(tag, k.buf[b.start+1:b.end])
	if err != nil {
		return Segment{}, err
	}
	return seg, nil
}

// KindAt returns the tag of the segment at depth i without decoding
// its value.
func (k *Key) KindAt(i int) (Kind, error) {
	if i < 0 || i >= len(k.bounds) {
		return 0, ErrUnderflow
	}
	return Kind(k.buf[k.bounds[i].start]), nil
}

// SegmentBytes returns the raw tag+value+terminator bytes of the
// segment at depth i, for byte-wise comparison against another
// segment of the same kind (used by keyfilter).
func (k *Key) SegmentBytes(i int) []byte {
	b := k.bounds[i]
	return k.buf[b.start:b.end]
}

// Bytes returns an independent copy of the encoded buffer, stable for
// use as a map key or for publishing across goroutines.
func (k *Key) Bytes() []byte {
	out := make([]byte, len(k.buf))
	copy(out, k.buf)
	return out
}

// Clear truncates k to depth 0, discarding any sentinel encoding
// (Before/After) or prior segments. Traversal oracles use this to turn
// a sentinel cursor into a real, appendable key.
func (k *Key) Clear() {
	k.buf = k.buf[:0]
	k.bounds = k.bounds[:0]
}

// Clone returns an independent copy of the Key.
func (k *Key) Clone() *Key {
	c := &Key{buf: make([]byte, len(k.buf)), bounds: make([]bound, len(k.bounds))}
	copy(c.buf, k.buf)
	copy(c.bounds, k.bounds)
	return c
}

// Cursor is a decode-only view over a Key's segments, produced by
// Reset or IndexTo.
type Cursor struct {
	key *Key
	idx int
}

// Reset returns a cursor positioned at depth 0.
func (k *Key) Reset() *Cursor { return &Cursor{key: k, idx: 0} }

// IndexTo returns a cursor positioned at depth i.
func (k *Key) IndexTo(i int) *Cursor { return &Cursor{key: k, idx: i} }

// Index returns the cursor's current depth.
func (c *Cursor) Index() int { return c.idx }

// Next decodes the segment at the cursor and advances it. ok is false
// once the cursor has passed the last segment.
func (c *Cursor) Next() (seg Segment, ok bool, err error) {
	if c.idx >= c.key.Depth() {
		return Segment{}, false, nil
	}
	seg, err = c.key.DecodeAt(c.idx)
	if err != nil {
		return Segment{}, false, err
	}
	c.idx++
	return seg, true, nil
}

// Compare orders two keys by their encoded byte representation, which
// by construction equals logical tuple order (and correctly places
// sentinel keys below/above any real key).
func Compare(a, b *Key) int {
	return bytes.Compare(a.buf, b.buf)
}
