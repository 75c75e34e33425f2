package gen

func Abs[T Integer | Float](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

// Clamp limits v to [lo, hi]
func Clamp[T Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampToFrame clamps an x or y coordinate into [0, extent-1].
// A zero or negative extent clamps everything to 0.
func ClampToFrame(v, extent int) int {
	if extent <= 0 {
		return 0
	}
	return Clamp(v, 0, extent-1)
}
