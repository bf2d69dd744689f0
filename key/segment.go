package key

import (
	"encoding/binary"
	"math"
)

// Kind identifies the type a Segment was encoded with. Kind values are
// chosen so that every real kind's tag byte sorts strictly between the
// BEFORE sentinel tag and the AFTER sentinel tag (see sentinel.go),
// which is what lets a sentinel key compare below/above every real key
// with a plain byte comparison.
type Kind uint8

const (
	KindBool Kind = 0x10 + iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
)

func (k Kind) fixedWidth() (int, bool) {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 1, true
	case KindInt16, KindUint16:
		return 2, true
	case KindInt32, KindUint32, KindFloat32:
		return 4, true
	case KindInt64, KindUint64, KindFloat64:
		return 8, true
	default:
		return 0, false
	}
}

// Segment is one typed, order-preserving-encodable value within a Key.
// Segments are immutable; build one with the Bool/IntN/UintN/FloatN/String
// constructors below.
type Segment struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
}

func (s Segment) Kind() Kind { return s.kind }

func Bool(v bool) Segment              { return Segment{kind: KindBool, b: v} }
func Int8(v int8) Segment              { return Segment{kind: KindInt8, i: int64(v)} }
func Int16(v int16) Segment            { return Segment{kind: KindInt16, i: int64(v)} }
func Int32(v int32) Segment            { return Segment{kind: KindInt32, i: int64(v)} }
func Int64(v int64) Segment            { return Segment{kind: KindInt64, i: v} }
func Uint8(v uint8) Segment            { return Segment{kind: KindUint8, u: uint64(v)} }
func Uint16(v uint16) Segment          { return Segment{kind: KindUint16, u: uint64(v)} }
func Uint32(v uint32) Segment          { return Segment{kind: KindUint32, u: uint64(v)} }
func Uint64(v uint64) Segment          { return Segment{kind: KindUint64, u: v} }
func Float32(v float32) Segment        { return Segment{kind: KindFloat32, f: float64(v)} }
func Float64(v float64) Segment        { return Segment{kind: KindFloat64, f: v} }
func String(v string) Segment          { return Segment{kind: KindString, s: v} }

func (s Segment) AsBool() (bool, error) {
	if s.kind != KindBool {
		return false, ErrTypeMismatch
	}
	return s.b, nil
}

func (s Segment) AsInt() (int64, error) {
	switch s.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return s.i, nil
	default:
		return 0, ErrTypeMismatch
	}
}

func (s Segment) AsUint() (uint64, error) {
	switch s.kind {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return s.u, nil
	default:
		return 0, ErrTypeMismatch
	}
}

func (s Segment) AsFloat() (float64, error) {
	switch s.kind {
	case KindFloat32, KindFloat64:
		return s.f, nil
	default:
		return 0, ErrTypeMismatch
	}
}

func (s Segment) AsString() (string, error) {
	if s.kind != KindString {
		return "", ErrTypeMismatch
	}
	return s.s, nil
}

// appendValue appends the order-preserving-encoded value bytes (tag
// excluded, terminator excluded) for s to dst and returns the result.
func (s Segment) appendValue(dst []byte) []byte {
	switch s.kind {
	case KindBool:
		if s.b {
			return append(dst, 1)
		}
		return append(dst, 0)
	case KindInt8:
		return append(dst, byte(int8(s.i))^0x80)
	case KindInt16:
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(int16(s.i)))
		buf[0] ^= 0x80
		return append(dst, buf[:]...)
	case KindInt32:
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(int32(s.i)))
		buf[0] ^= 0x80
		return append(dst, buf[:]...)
	case KindInt64:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(s.i))
		buf[0] ^= 0x80
		return append(dst, buf[:]...)
	case KindUint8:
		return append(dst, byte(s.u))
	case KindUint16:
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(s.u))
		return append(dst, buf[:]...)
	case KindUint32:
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(s.u))
		return append(dst, buf[:]...)
	case KindUint64:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], s.u)
		return append(dst, buf[:]...)
	case KindFloat32:
		bits := math.Float32bits(float32(s.f))
		if bits>>31 == 1 {
			bits = ^bits
		} else {
			bits |= 1 << 31
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], bits)
		return append(dst, buf[:]...)
	case KindFloat64:
		bits := math.Float64bits(s.f)
		if bits>>63 == 1 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], bits)
		return append(dst, buf[:]...)
	case KindString:
		for i := 0; i < len(s.s); i++ {
			c := s.s[i]
			if c == 0 {
				dst = append(dst, 0, 0xFF)
			} else {
				dst = append(dst, c)
			}
		}
		return dst
	default:
		panic("key: unknown segment kind")
	}
}

// decodeValue decodes the value bytes for kind out of src (which must
// not include the tag byte) and returns the Segment and the number of
// bytes of src consumed (not including the terminator byte).
func decodeValue(kind Kind, src []byte) (Segment, int, error) {
	if width, ok := kind.fixedWidth(); ok {
		if len(src) < width {
			return Segment{}, 0, ErrUnderflow
		}
		switch kind {
		case KindBool:
			return Segment{kind: kind, b: src[0] != 0}, 1, nil
		case KindInt8:
			return Segment{kind: kind, i: int64(int8(src[0] ^ 0x80))}, 1, nil
		case KindInt16:
			var buf [2]byte
			copy(buf[:], src[:2])
			buf[0] ^= 0x80
			return Segment{kind: kind, i: int64(int16(binary.BigEndian.Uint16(buf[:])))}, 2, nil
		case KindInt32:
			var buf [4]byte
			copy(buf[:], src[:4])
			buf[0] ^= 0x80
			return Segment{kind: kind, i: int64(int32(binary.BigEndian.Uint32(buf[:])))}, 4, nil
		case KindInt64:
			var buf [8]byte
			copy(buf[:], src[:8])
			buf[0] ^= 0x80
			return Segment{kind: kind, i: int64(binary.BigEndian.Uint64(buf[:]))}, 8, nil
		case KindUint8:
			return Segment{kind: kind, u: uint64(src[0])}, 1, nil
		case KindUint16:
			return Segment{kind: kind, u: uint64(binary.BigEndian.Uint16(src[:2]))}, 2, nil
		case KindUint32:
			return Segment{kind: kind, u: uint64(binary.BigEndian.Uint32(src[:4]))}, 4, nil
		case KindUint64:
			return Segment{kind: kind, u: binary.BigEndian.Uint64(src[:8])}, 8, nil
		case KindFloat32:
			bits := binary.BigEndian.Uint32(src[:4])
			if bits>>31 == 1 {
				bits &^= 1 << 31
			} else {
				bits = ^bits
			}
			return Segment{kind: kind, f: float64(math.Float32frombits(bits))}, 4, nil
		case KindFloat64:
			bits := binary.BigEndian.Uint64(src[:8])
			if bits>>63 == 1 {
				bits &^= 1 << 63
			} else {
				bits = ^bits
			}
			return Segment{kind: kind, f: math.Float64frombits(bits)}, 8, nil
		}
	}
	if kind == KindString {
		out := make([]byte, 0, len(src))
		i := 0
		for {
			if i >= len(src) {
				return Segment{}, 0, ErrUnderflow
			}
			if src[i] == 0 {
				if i+1 < len(src) && src[i+1] == 0xFF {
					out = append(out, 0)
					i += 2
					continue
				}
				// bare terminator: consumed bytes do not include it
				return Segment{kind: kind, s: string(out)}, i, nil
			}
			out = append(out, src[i])
			i++
		}
	}
	return Segment{}, 0, ErrTypeMismatch
}
