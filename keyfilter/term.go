// Package keyfilter implements the KeyFilter selection/navigation DSL
// (component C2): an immutable, depth-scoped predicate over key.Key
// segments, with a compiled text form and a traversal oracle that can
// seek an ordered cursor to the next key a filter could accept.
package keyfilter

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/veloxdb/veloxdb/key"
)

// TermKind tags the variant of a Term, replacing the source material's
// Term subclass hierarchy with an exhaustive, matchable enumeration
// (per spec.md §9's design note).
type TermKind uint8

const (
	TermAll TermKind = iota
	TermSimple
	TermRange
	TermOr
)

// ErrNotDisjoint is returned by NewOr when its children are not
// pairwise disjoint or not supplied in ascending order by lower bound.
var ErrNotDisjoint = errors.New("keyfilter: or-term children must be disjoint and ascending")

// Term is a depth-scoped predicate, tagged by TermKind.
type Term struct {
	kind        TermKind
	value       key.Segment
	lo, hi      *key.Segment
	loInclusive bool
	hiInclusive bool
	children    []Term
}

// Kind returns the term's variant tag.
func (t Term) Kind() TermKind { return t.kind }

// All returns the wildcard term, which matches any segment.
func All() Term { return Term{kind: TermAll} }

// Simple returns a term matching exactly one segment value.
func Simple(v key.Segment) Term { return Term{kind: TermSimple, value: v} }

// Range returns a term matching segments within [lo, hi] (or open on
// either side when lo/hi is nil), with inclusivity controlled by
// loInclusive/hiInclusive.
func Range(lo, hi *key.Segment, loInclusive, hiInclusive bool) Term {
	return Term{kind: TermRange, lo: lo, hi: hi, loInclusive: loInclusive, hiInclusive: hiInclusive}
}

// lowerBound returns the effective sort key used to order Or children:
// the term's smallest admissible encoded bound, or nil if unbounded
// below.
func (t Term) lowerBound() []byte {
	switch t.kind {
	case TermSimple:
		return segBytes(t.value)
	case TermRange:
		if t.lo == nil {
			return nil
		}
		return segBytes(*t.lo)
	default:
		return nil
	}
}

// NewOr returns an Or term over children, which must be pairwise
// disjoint and supplied in ascending order by lower bound (spec.md
// §3's KeyFilter invariant). Children must each be Simple or Range
// terms.
func NewOr(children ...Term) (Term, error) {
	cp := append([]Term{}, children...)
	for i := 1; i < len(cp); i++ {
		prevHi := cp[i-1].upperBytes()
		curLo := cp[i].lowerBound()
		if prevHi == nil || curLo == nil {
			// Either side open-ended next to another child is never
			// disjoint-and-ascending in a meaningful way.
			return Term{}, ErrNotDisjoint
		}
		if bytes.Compare(curLo, prevHi) <= 0 {
			return Term{}, ErrNotDisjoint
		}
	}
	return Term{kind: TermOr, children: cp}, nil
}

func (t Term) upperBytes() []byte {
	switch t.kind {
	case TermSimple:
		return segBytes(t.value)
	case TermRange:
		if t.hi == nil {
			return nil
		}
		return segBytes(*t.hi)
	default:
		return nil
	}
}

func segBytes(s key.Segment) []byte {
	k := key.New()
	k.Append(s)
	return k.SegmentBytes(0)
}

func compareSeg(a, b key.Segment) int {
	return bytes.Compare(segBytes(a), segBytes(b))
}

// matches reports whether seg satisfies t.
func (t Term) matches(seg key.Segment) bool {
	switch t.kind {
	case TermAll:
		return true
	case TermSimple:
		return compareSeg(seg, t.value) == 0
	case TermRange:
		if t.lo != nil {
			c := compareSeg(seg, *t.lo)
			if t.loInclusive {
				if c < 0 {
					return false
				}
			} else if c <= 0 {
				return false
			}
		}
		if t.hi != nil {
			c := compareSeg(seg, *t.hi)
			if t.hiInclusive {
				if c > 0 {
					return false
				}
			} else if c >= 0 {
				return false
			}
		}
		return true
	case TermOr:
		for _, c := range t.children {
			if c.matches(seg) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
