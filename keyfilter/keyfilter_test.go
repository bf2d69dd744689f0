package keyfilter

import (
	"testing"

	"github.com/veloxdb/veloxdb/key"
)

func mustFilter(t *testing.T, s string) *Filter {
	t.Helper()
	f, err := ParseString(s)
	if err != nil {
		t.Fatalf("ParseString(%q): %v", s, err)
	}
	return f
}

func buildKey(segs ...key.Segment) *key.Key {
	k := key.New()
	for _, s := range segs {
		k.Append(s)
	}
	return k
}

// TestAtlanticFilter exercises the concrete scenario from spec.md §8:
// {"atlantic",(float)1.3,"x":"z",{100:150,200:250,[300:350)},*<} limit(2,5).
func TestAtlanticFilter(t *testing.T) {
	f := mustFilter(t, `{"atlantic",(float)1.3,"x":"z",{100:150,200:250,[300:350)},*<}limit(2,5)`)

	cases := []struct {
		name string
		k    *key.Key
		want bool
	}{
		{"atlantic,1.3,y", buildKey(key.String("atlantic"), key.Float64(1.3), key.String("y")), true},
		{"w", buildKey(key.String("w")), false},
		{"z0 deeper", buildKey(key.String("atlantic"), key.Float64(1.3), key.String("z"), key.Int64(0)), false},
		{"atlantic,1.3,x,125", buildKey(key.String("atlantic"), key.Float64(1.3), key.String("x"), key.Int64(125)), true},
		{"atlantic,1.3,x,175", buildKey(key.String("atlantic"), key.Float64(1.3), key.String("x"), key.Int64(175)), false},
		{"atlantic,1.3,x,200,tom", buildKey(key.String("atlantic"), key.Float64(1.3), key.String("x"), key.Int64(200), key.String("tom")), true},
		{"atlantic,1.3,x,200,tom,dick", buildKey(key.String("atlantic"), key.Float64(1.3), key.String("x"), key.Int64(200), key.String("tom"), key.String("dick")), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := f.Selected(c.k); got != c.want {
				t.Errorf("Selected(%s) = %v, want %v", c.name, got, c.want)
			}
		})
	}
}

// TestRoundTrip checks parse(toString(f)) == f for a representative
// set of filters.
func TestRoundTrip(t *testing.T) {
	texts := []string{
		`{"atlantic",(float)1.3,"x":"z",{100:150,200:250,[300:350)},*<}limit(2,5)`,
		`{10:20}limit(0,1)`,
		`{*}limit(1,1)`,
	}
	for _, text := range texts {
		f1 := mustFilter(t, text)
		f2 := mustFilter(t, f1.String())
		if f1.String() != f2.String() {
			t.Fatalf("round trip mismatch: %q -> %q -> %q", text, f1.String(), f2.String())
		}
	}
}

// TestParseErrorOffset checks that invalid input reports the offending
// byte offset, matching the ParseKeyFilterString(-1-on-success)
// contract.
func TestParseErrorOffset(t *testing.T) {
	if got := ParseKeyFilterString(`{"atlantic",(float)1.3}limit(0,2)`); got != -1 {
		t.Fatalf("valid filter reported offset %d, want -1", got)
	}
	if got := ParseKeyFilterString(`{"atlantic"`); got == -1 {
		t.Fatal("unterminated filter should not parse")
	}
}

// linearScanSelected is a naive reference oracle: it walks integer
// keys 0..maxVal-1 one at a time and tests Selected directly, used to
// verify Traverse's monotonic, exhaustive enumeration.
func linearScanSelected(f *Filter, maxVal int64) []int64 {
	var out []int64
	for v := int64(0); v < maxVal; v++ {
		if f.Selected(buildKey(key.Int64(v))) {
			out = append(out, v)
		}
	}
	return out
}

// driveForward mimics the real cursor-iteration idiom: Traverse is only
// ever invoked on a key that is not currently Selected (its contract),
// so a selected key advances by the underlying physical successor
// instead, and Traverse is used purely to jump over gaps the filter
// rejects.
func driveForward(f *Filter, maxExclusive int64) []int64 {
	var got []int64
	k := key.Before()
	for {
		if f.Selected(k) {
			seg, _ := k.DecodeAt(0)
			v, _ := seg.AsInt()
			got = append(got, v)
			if v+1 >= maxExclusive {
				return got
			}
			k = buildKeyInt(v + 1)
			continue
		}
		if !f.Traverse(k, true) {
			return got
		}
		if k.IsAfter() || k.Depth() == 0 {
			return got
		}
		seg, _ := k.DecodeAt(0)
		v, _ := seg.AsInt()
		if v >= maxExclusive {
			return got
		}
	}
}

func driveBackward(f *Filter, minInclusive int64) []int64 {
	var got []int64
	k := buildKeyInt(1 << 30)
	for {
		if f.Selected(k) {
			seg, _ := k.DecodeAt(0)
			v, _ := seg.AsInt()
			got = append([]int64{v}, got...)
			if v-1 < minInclusive {
				return got
			}
			k = buildKeyInt(v - 1)
			continue
		}
		if !f.Traverse(k, false) {
			return got
		}
		if k.Depth() == 0 {
			return got
		}
		seg, _ := k.DecodeAt(0)
		v, _ := seg.AsInt()
		if v < minInclusive {
			return got
		}
	}
}

func orOfThreeRanges(t *testing.T) *Filter {
	t.Helper()
	lo1, hi1 := key.Int64(10), key.Int64(20)
	lo2, hi2 := key.Int64(50), key.Int64(60)
	lo3, hi3 := key.Int64(80), key.Int64(90)
	or, err := NewOr(
		Range(&lo1, &hi1, true, false),
		Range(&lo2, &hi2, true, false),
		Range(&lo3, &hi3, false, true),
	)
	if err != nil {
		t.Fatal(err)
	}
	return New([]Term{or}, 1, 1, false)
}

// TestOrTraverseForward is spec.md §8's OR-of-three-ranges scenario:
// [10:20) ∪ [50:60) ∪ (80:90] over integers 0..99, forward.
func TestOrTraverseForward(t *testing.T) {
	f := orOfThreeRanges(t)
	want := linearScanSelected(f, 100)
	got := driveForward(f, 100)
	if len(got) != len(want) {
		t.Fatalf("traverse forward produced %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("traverse forward[%d] = %d, want %d (full: %v vs %v)", i, got[i], want[i], got, want)
		}
	}
}

// TestOrTraverseBackward mirrors TestOrTraverseForward in reverse.
func TestOrTraverseBackward(t *testing.T) {
	f := orOfThreeRanges(t)
	want := linearScanSelected(f, 100)
	got := driveBackward(f, 0)
	if len(got) != len(want) {
		t.Fatalf("traverse backward produced %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("traverse backward[%d] = %d, want %d (full: %v vs %v)", i, got[i], want[i], got, want)
		}
	}
}

func buildKeyInt(v int64) *key.Key { return buildKey(key.Int64(v)) }

// universe returns every depth-1 key `a` and depth-2 key `(a,b)` for a
// in [0,maxA), b in [0,maxB), in ascending key order: a shorter key
// sorts below any of its own extensions, so (a) < (a,0) < ... <
// (a,maxB-1) < (a+1).
func universe(maxA, maxB int64) []*key.Key {
	var out []*key.Key
	for a := int64(0); a < maxA; a++ {
		out = append(out, buildKeyInt(a))
		for b := int64(0); b < maxB; b++ {
			out = append(out, buildKey(key.Int64(a), key.Int64(b)))
		}
	}
	return out
}

func indexOf(universe []*key.Key, k *key.Key) int {
	for i, u := range universe {
		if key.Compare(u, k) == 0 {
			return i
		}
	}
	return -1
}

// TestTraverseMonotonicExhaustive drives Traverse/Selected against a
// multi-depth filter with a wildcard tail over a small, enumerable
// universe and checks it visits every selected key exactly once, in
// ascending order, matching a linear scan. Traverse is invoked only
// when the current key is not Selected, per its contract; a selected
// key is recorded and then advanced by moving to the next entry in the
// physical universe, mirroring how a real cursor walk interleaves
// filter jumps with the underlying storage's own iteration order.
func TestTraverseMonotonicExhaustive(t *testing.T) {
	f := mustFilter(t, `{10:90,*<}limit(1,3)`)
	const maxA, maxB = 100, 5

	u := universe(maxA, maxB)
	var want []*key.Key
	for _, k := range u {
		if f.Selected(k) {
			want = append(want, k)
		}
	}

	var got []*key.Key
	idx := 0
	steps := 0
	for idx < len(u) {
		steps++
		if steps > 10*len(u) {
			t.Fatal("traverse did not terminate")
		}
		if f.Selected(u[idx]) {
			got = append(got, u[idx])
			idx++
			continue
		}
		cand := u[idx].Clone()
		if !f.Traverse(cand, true) {
			break
		}
		next := indexOf(u, cand)
		if next == -1 || next <= idx {
			t.Fatalf("traverse jumped to a key outside or not ahead in the universe: idx=%d", idx)
		}
		idx = next
	}

	if len(got) != len(want) {
		t.Fatalf("traverse produced %d keys, want %d", len(got), len(want))
	}
	for i := range want {
		if key.Compare(got[i], want[i]) != 0 {
			t.Fatalf("traverse[%d] mismatch", i)
		}
	}
	for i := 1; i < len(got); i++ {
		if key.Compare(got[i-1], got[i]) >= 0 {
			t.Fatalf("traverse not strictly increasing at %d", i)
		}
	}
}
