package txn

// VH is a version handle: a transaction's start timestamp packed with
// a step index identifying one of possibly several versions that
// transaction wrote. The start timestamp occupies the high bits and
// the step the low vhStepBits bits, so handles order by (ts, step).
type VH uint64

const vhStepBits = 12
const vhStepMask = 1<<vhStepBits - 1

// ts2vh builds the version handle for step 0 of the transaction that
// started at ts.
func ts2vh(ts uint64) VH {
	return VH(ts) << vhStepBits
}

// TS returns the transaction start timestamp encoded in vh.
func (vh VH) TS() uint64 {
	return uint64(vh) >> vhStepBits
}

// Step returns the step index encoded in vh.
func (vh VH) Step() uint32 {
	return uint32(vh) & vhStepMask
}

// WithStep returns the version handle for the same transaction at a
// different step. step must fit in vhStepBits; callers exceeding that
// per-transaction version budget get silently wrapped step bits, which
// TransactionIndex surfaces as ordering corruption rather than a
// runtime panic, matching the "document the overflow policy" guidance
// instead of crashing inside a hot path.
func (vh VH) WithStep(step uint32) VH {
	return (vh &^ vhStepMask) | VH(step&vhStepMask)
}
