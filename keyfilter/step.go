package keyfilter

import (
	"math"

	"github.com/veloxdb/veloxdb/key"
)

// successor returns the smallest encodable value strictly greater than
// s, or ok=false if s is already the maximal value of its kind.
//
// For strings the successor is exact: s+"\x00" is the smallest byte
// string strictly greater than s under the encoding's comparator,
// because any string with s as a strict prefix sorts above s, and
// appending the smallest possible byte produces the least such string.
func successor(s key.Segment) (key.Segment, bool) {
	switch s.Kind() {
	case key.KindBool:
		b, _ := s.AsBool()
		if b {
			return key.Segment{}, false
		}
		return key.Bool(true), true
	case key.KindInt8:
		v, _ := s.AsInt()
		if v >= math.MaxInt8 {
			return key.Segment{}, false
		}
		return key.Int8(int8(v + 1)), true
	case key.KindInt16:
		v, _ := s.AsInt()
		if v >= math.MaxInt16 {
			return key.Segment{}, false
		}
		return key.Int16(int16(v + 1)), true
	case key.KindInt32:
		v, _ := s.AsInt()
		if v >= math.MaxInt32 {
			return key.Segment{}, false
		}
		return key.Int32(int32(v + 1)), true
	case key.KindInt64:
		v, _ := s.AsInt()
		if v == math.MaxInt64 {
			return key.Segment{}, false
		}
		return key.Int64(v + 1), true
	case key.KindUint8:
		v, _ := s.AsUint()
		if v >= math.MaxUint8 {
			return key.Segment{}, false
		}
		return key.Uint8(uint8(v + 1)), true
	case key.KindUint16:
		v, _ := s.AsUint()
		if v >= math.MaxUint16 {
			return key.Segment{}, false
		}
		return key.Uint16(uint16(v + 1)), true
	case key.KindUint32:
		v, _ := s.AsUint()
		if v >= math.MaxUint32 {
			return key.Segment{}, false
		}
		return key.Uint32(uint32(v + 1)), true
	case key.KindUint64:
		v, _ := s.AsUint()
		if v == math.MaxUint64 {
			return key.Segment{}, false
		}
		return key.Uint64(v + 1), true
	case key.KindFloat32:
		f, _ := s.AsFloat()
		f32 := float32(f)
		if math.IsInf(float64(f32), 1) {
			return key.Segment{}, false
		}
		return key.Float32(math.Nextafter32(f32, float32(math.Inf(1)))), true
	case key.KindFloat64:
		f, _ := s.AsFloat()
		if math.IsInf(f, 1) {
			return key.Segment{}, false
		}
		return key.Float64(math.Nextafter(f, math.Inf(1))), true
	case key.KindString:
		str, _ := s.AsString()
		return key.String(str + "\x00"), true
	default:
		return key.Segment{}, false
	}
}

// predecessor returns the largest encodable value strictly less than
// s, or ok=false if none exists.
//
// For strings there is no exact predecessor in the dense byte-string
// order (for any candidate below s there is always one closer to s),
// so this returns a best-effort approximation: s with its last byte
// decremented (or truncated, if the last byte is already zero),
// padded to bias it as close to s as this encoding distinguishes.
// Callers needing an exact backward string bound should use an
// inclusive lower bound instead of relying on this approximation; no
// spec scenario requires an exact string predecessor.
func predecessor(s key.Segment) (key.Segment, bool) {
	switch s.Kind() {
	case key.KindBool:
		b, _ := s.AsBool()
		if !b {
			return key.Segment{}, false
		}
		return key.Bool(false), true
	case key.KindInt8:
		v, _ := s.AsInt()
		if v <= math.MinInt8 {
			return key.Segment{}, false
		}
		return key.Int8(int8(v - 1)), true
	case key.KindInt16:
		v, _ := s.AsInt()
		if v <= math.MinInt16 {
			return key.Segment{}, false
		}
		return key.Int16(int16(v - 1)), true
	case key.KindInt32:
		v, _ := s.AsInt()
		if v <= math.MinInt32 {
			return key.Segment{}, false
		}
		return key.Int32(int32(v - 1)), true
	case key.KindInt64:
		v, _ := s.AsInt()
		if v == math.MinInt64 {
			return key.Segment{}, false
		}
		return key.Int64(v - 1), true
	case key.KindUint8:
		v, _ := s.AsUint()
		if v == 0 {
			return key.Segment{}, false
		}
		return key.Uint8(uint8(v - 1)), true
	case key.KindUint16:
		v, _ := s.AsUint()
		if v == 0 {
			return key.Segment{}, false
		}
		return key.Uint16(uint16(v - 1)), true
	case key.KindUint32:
		v, _ := s.AsUint()
		if v == 0 {
			return key.Segment{}, false
		}
		return key.Uint32(uint32(v - 1)), true
	case key.KindUint64:
		v, _ := s.AsUint()
		if v == 0 {
			return key.Segment{}, false
		}
		return key.Uint64(v - 1), true
	case key.KindFloat32:
		f, _ := s.AsFloat()
		f32 := float32(f)
		if math.IsInf(float64(f32), -1) {
			return key.Segment{}, false
		}
		return key.Float32(math.Nextafter32(f32, float32(math.Inf(-1)))), true
	case key.KindFloat64:
		f, _ := s.AsFloat()
		if math.IsInf(f, -1) {
			return key.Segment{}, false
		}
		return key.Float64(math.Nextafter(f, math.Inf(-1))), true
	case key.KindString:
		str, _ := s.AsString()
		if len(str) == 0 {
			return key.Segment{}, false
		}
		b := []byte(str)
		last := b[len(b)-1]
		if last == 0 {
			return key.String(string(b[:len(b)-1])), true
		}
		b[len(b)-1] = last - 1
		return key.String(string(b) + "\xff"), true
	default:
		return key.Segment{}, false
	}
}

// stepForward returns the smallest value accepted by term that is
// >= cur (or > cur if strict), or ok=false if no such value exists.
func stepForward(term Term, cur key.Segment, strict bool) (key.Segment, bool) {
	switch term.kind {
	case TermAll:
		if strict {
			return successor(cur)
		}
		return cur, true
	case TermSimple:
		c := compareSeg(term.value, cur)
		if strict {
			if c > 0 {
				return term.value, true
			}
			return key.Segment{}, false
		}
		if c >= 0 {
			return term.value, true
		}
		return key.Segment{}, false
	case TermRange:
		base := cur
		if strict {
			s, ok := successor(cur)
			if !ok {
				return key.Segment{}, false
			}
			base = s
		}
		if term.lo != nil {
			loEff := *term.lo
			if !term.loInclusive {
				s, ok := successor(loEff)
				if !ok {
					return key.Segment{}, false
				}
				loEff = s
			}
			if compareSeg(loEff, base) > 0 {
				base = loEff
			}
		}
		if term.hi != nil {
			c := compareSeg(base, *term.hi)
			if term.hiInclusive {
				if c > 0 {
					return key.Segment{}, false
				}
			} else if c >= 0 {
				return key.Segment{}, false
			}
		}
		return base, true
	case TermOr:
		for _, child := range term.children {
			if v, ok := stepForward(child, cur, strict); ok {
				return v, true
			}
		}
		return key.Segment{}, false
	default:
		return key.Segment{}, false
	}
}

// stepBackward is the mirror of stepForward: the largest value
// accepted by term that is <= cur (or < cur if strict).
func stepBackward(term Term, cur key.Segment, strict bool) (key.Segment, bool) {
	switch term.kind {
	case TermAll:
		if strict {
			return predecessor(cur)
		}
		return cur, true
	case TermSimple:
		c := compareSeg(term.value, cur)
		if strict {
			if c < 0 {
				return term.value, true
			}
			return key.Segment{}, false
		}
		if c <= 0 {
			return term.value, true
		}
		return key.Segment{}, false
	case TermRange:
		base := cur
		if strict {
			s, ok := predecessor(cur)
			if !ok {
				return key.Segment{}, false
			}
			base = s
		}
		if term.hi != nil {
			hiEff := *term.hi
			if !term.hiInclusive {
				s, ok := predecessor(hiEff)
				if !ok {
					return key.Segment{}, false
				}
				hiEff = s
			}
			if compareSeg(hiEff, base) < 0 {
				base = hiEff
			}
		}
		if term.lo != nil {
			c := compareSeg(base, *term.lo)
			if term.loInclusive {
				if c < 0 {
					return key.Segment{}, false
				}
			} else if c <= 0 {
				return key.Segment{}, false
			}
		}
		return base, true
	case TermOr:
		for i := len(term.children) - 1; i >= 0; i-- {
			if v, ok := stepBackward(term.children[i], cur, strict); ok {
				return v, true
			}
		}
		return key.Segment{}, false
	default:
		return key.Segment{}, false
	}
}

// minimalAtDepth returns the smallest (forward) or largest (backward)
// value term accepts at all, used when extending a key past its
// current depth rather than fixing up an existing segment.
func minimalAtDepth(term Term, forward bool) (key.Segment, bool) {
	switch term.kind {
	case TermSimple:
		return term.value, true
	case TermRange:
		if forward {
			if term.lo == nil {
				return key.Segment{}, false
			}
			if term.loInclusive {
				return *term.lo, true
			}
			return successor(*term.lo)
		}
		if term.hi == nil {
			return key.Segment{}, false
		}
		if term.hiInclusive {
			return *term.hi, true
		}
		return predecessor(*term.hi)
	case TermOr:
		if len(term.children) == 0 {
			return key.Segment{}, false
		}
		if forward {
			return minimalAtDepth(term.children[0], forward)
		}
		return minimalAtDepth(term.children[len(term.children)-1], forward)
	default: // TermAll: no type information to manufacture a value from
		return key.Segment{}, false
	}
}
