package keyfilter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/veloxdb/veloxdb/key"
)

// String renders f in the text grammar ParseString accepts, such that
// ParseString(f.String()) produces an equivalent filter (spec.md §4.2's
// round-trip requirement parse(toString(f)) ≡ f).
func (f *Filter) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, t := range f.terms {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.String())
	}
	if f.wildcardTail {
		if len(f.terms) > 0 {
			b.WriteByte(',')
		}
		b.WriteString("*<")
	}
	b.WriteByte('}')
	fmt.Fprintf(&b, "limit(%d,%d)", f.minDepth, f.maxDepth)
	return b.String()
}

// String renders t in the text grammar.
func (t Term) String() string {
	switch t.kind {
	case TermAll:
		return "*"
	case TermSimple:
		return formatSegment(t.value)
	case TermRange:
		var b strings.Builder
		if t.lo == nil {
			// open lower bound: nothing before ':'
		} else if !t.loInclusive {
			b.WriteByte('(')
			b.WriteString(formatSegment(*t.lo))
		} else {
			b.WriteString(formatSegment(*t.lo))
		}
		b.WriteByte(':')
		if t.hi != nil {
			b.WriteString(formatSegment(*t.hi))
		}
		if t.hi != nil {
			if t.hiInclusive {
				b.WriteByte(']')
			} else {
				b.WriteByte(')')
			}
		}
		return b.String()
	case TermOr:
		var b strings.Builder
		b.WriteByte('{')
		for i, c := range t.children {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(c.String())
		}
		b.WriteByte('}')
		return b.String()
	default:
		return "?"
	}
}

func formatSegment(s key.Segment) string {
	switch s.Kind() {
	case key.KindBool:
		v, _ := s.AsBool()
		return strconv.FormatBool(v)
	case key.KindString:
		v, _ := s.AsString()
		return strconv.Quote(v)
	case key.KindInt8:
		v, _ := s.AsInt()
		return "(int8)" + strconv.FormatInt(v, 10)
	case key.KindInt16:
		v, _ := s.AsInt()
		return "(int16)" + strconv.FormatInt(v, 10)
	case key.KindInt32:
		v, _ := s.AsInt()
		return "(int32)" + strconv.FormatInt(v, 10)
	case key.KindInt64:
		v, _ := s.AsInt()
		return strconv.FormatInt(v, 10)
	case key.KindUint8:
		v, _ := s.AsUint()
		return "(uint8)" + strconv.FormatUint(v, 10)
	case key.KindUint16:
		v, _ := s.AsUint()
		return "(uint16)" + strconv.FormatUint(v, 10)
	case key.KindUint32:
		v, _ := s.AsUint()
		return "(uint32)" + strconv.FormatUint(v, 10)
	case key.KindUint64:
		v, _ := s.AsUint()
		return "(uint64)" + strconv.FormatUint(v, 10)
	case key.KindFloat32:
		v, _ := s.AsFloat()
		return "(float32)" + strconv.FormatFloat(v, 'g', -1, 32)
	case key.KindFloat64:
		v, _ := s.AsFloat()
		return "(float)" + strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return ""
	}
}
