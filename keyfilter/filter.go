package keyfilter

import "github.com/veloxdb/veloxdb/key"

// Filter is an immutable, ordered list of depth-scoped Terms plus a
// [MinDepth, MaxDepth] bound (spec.md §3's KeyFilter). Every mutator
// (Append, Limit) returns a new Filter: Limit shares the term slice,
// Append copies it.
type Filter struct {
	terms        []Term
	minDepth     int
	maxDepth     int
	wildcardTail bool
}

// New builds a Filter from terms with the given depth bounds.
// wildcardTail corresponds to a trailing "*<" in the text form: depths
// beyond len(terms) are allowed (up to maxDepth) without constraint.
func New(terms []Term, minDepth, maxDepth int, wildcardTail bool) *Filter {
	cp := append([]Term{}, terms...)
	return &Filter{terms: cp, minDepth: minDepth, maxDepth: maxDepth, wildcardTail: wildcardTail}
}

func (f *Filter) MinDepth() int      { return f.minDepth }
func (f *Filter) MaxDepth() int      { return f.maxDepth }
func (f *Filter) WildcardTail() bool { return f.wildcardTail }
func (f *Filter) Terms() []Term      { return append([]Term{}, f.terms...) }

// Append returns a new Filter with term appended after the existing
// terms, depth bounds and wildcard tail unchanged.
func (f *Filter) Append(t Term) *Filter {
	terms := append(append([]Term{}, f.terms...), t)
	return &Filter{terms: terms, minDepth: f.minDepth, maxDepth: f.maxDepth, wildcardTail: f.wildcardTail}
}

// Limit returns a new Filter with the depth bounds replaced.
func (f *Filter) Limit(min, max int) *Filter {
	return &Filter{terms: f.terms, minDepth: min, maxDepth: max, wildcardTail: f.wildcardTail}
}

// Selected reports whether k satisfies the filter (spec.md §4.2).
func (f *Filter) Selected(k *key.Key) bool {
	depth := k.Depth()
	if depth < f.minDepth || depth > f.maxDepth {
		return false
	}
	for i := 0; i < depth; i++ {
		if i < len(f.terms) {
			term := f.terms[i]
			if term.kind == TermAll {
				continue
			}
			seg, err := k.DecodeAt(i)
			if err != nil {
				return false
			}
			if !term.matches(seg) {
				return false
			}
		} else if !(i < f.maxDepth && f.wildcardTail) {
			return false
		}
	}
	return true
}

// Traverse mutates k, which must not currently be Selected, into the
// next (forward=true) or previous (forward=false) encoded key value
// that could be selected, in strict key order. It returns false if no
// such key exists within the filter's domain, leaving k unspecified.
//
// Algorithm (spec.md §4.2): find the shallowest depth at which the
// term there rejects the key's current segment (or the key runs out
// of segments before satisfying MinDepth, or runs past MaxDepth/the
// wildcard tail); fix that depth to the nearest admissible value in
// the requested direction; if no admissible value exists at that
// depth, carry the search to the shallower depth, this time requiring
// a value strictly beyond the one already there.
func (f *Filter) Traverse(k *key.Key, forward bool) bool {
	if k.IsBefore() || k.IsAfter() {
		k.Clear()
	}
	depth := k.Depth()

	d := -1
	for i := 0; i < depth; i++ {
		if i < len(f.terms) {
			term := f.terms[i]
			if term.kind == TermAll {
				continue
			}
			seg, err := k.DecodeAt(i)
			if err != nil {
				return false
			}
			if !term.matches(seg) {
				d = i
				break
			}
		} else if !(i < f.maxDepth && f.wildcardTail) {
			d = i
			break
		}
	}

	if d == -1 {
		switch {
		case depth < f.minDepth:
			d = depth
		case depth > f.maxDepth:
			d = f.maxDepth
		default:
			// Already selected; nothing to fix up.
			return true
		}
	}

	strict := false
	for d >= 0 {
		if d >= len(f.terms) {
			return false
		}
		term := f.terms[d]
		if term.kind == TermAll && !strict && d >= depth {
			// A fresh ALL position with no current value carries no
			// type information to manufacture a concrete segment from.
			return false
		}

		var newSeg key.Segment
		var ok bool
		if d < depth {
			cur, err := k.DecodeAt(d)
			if err != nil {
				return false
			}
			if forward {
				newSeg, ok = stepForward(term, cur, strict)
			} else {
				newSeg, ok = stepBackward(term, cur, strict)
			}
		} else {
			newSeg, ok = minimalAtDepth(term, forward)
		}

		if ok {
			if err := k.Cut(k.Depth() - d); err != nil {
				return false
			}
			k.Append(newSeg)
			return true
		}

		d--
		strict = true
	}
	return false
}
