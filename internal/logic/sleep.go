package logic

// SleepDuration picks a sleep length uniformly in [base-tol, base+tol].
// A nil rng or zero tolerance returns base.
func SleepDuration(base, tol uint32, rng Random) uint32 {
	if tol == 0 || rng == nil {
		return base
	}
	if tol > base {
		tol = base
	}
	lo := uint64(base) - uint64(tol)
	span := 2*uint64(tol) + 1
	d := lo + uint64(rng.Int63n(int64(span)))
	if d > 0xFFFFFFFF {
		d = 0xFFFFFFFF
	}
	return uint32(d)
}

// SendDelay picks the initial send delay in [d.MinMs, d.MaxMs].
func SendDelay(d DelaySpec, rng Random) uint16 {
	if d.MaxMs <= d.MinMs || rng == nil {
		return d.MinMs
	}
	span := int64(d.MaxMs-d.MinMs) + 1
	return d.MinMs + uint16(rng.Int63n(span))
}
