package gain

import "math"

// fixed is a linear gain in Q7.24 fixed point. Node gains and curve
// interpolation use it so every platform produces the same curves.
type fixed int32

const (
	fracBits = 24
	one      = fixed(1 << fracBits)

	// maxFixedDB is the largest gain that fits a fixed, about +42 dB.
	maxFixedDB = 42.1
)

// fromDB converts a dB gain to a linear fixed gain, saturating at the
// representable range. 0 dB is exactly one.
func fromDB(db float32) fixed {
	if db == 0 {
		return one
	}
	if db >= maxFixedDB {
		return math.MaxInt32
	}
	v := math.Exp2(float64(db)*(math.Log2(10)/20)) * (1 << fracBits)
	return fixed(math.Round(v))
}

// float returns the gain as a float32. one maps to exactly 1.
func (f fixed) float() float32 {
	return float32(f) / (1 << fracBits)
}

// lerp interpolates between g0 at x0 and g1 at x1 at position x, with
// x0 < x1 and x0 <= x <= x1. The result is rounded to nearest.
func lerp(g0, g1 fixed, x0, x1, x int) fixed {
	num := (int64(g1) - int64(g0)) * int64(x-x0)
	den := int64(x1 - x0)
	if num >= 0 {
		return g0 + fixed((num+den/2)/den)
	}
	return g0 + fixed((num-den/2)/den)
}
