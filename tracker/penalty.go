package tracker

import "math"

// Change returns the larger of r and 1/r, a symmetric measure of how far a
// ratio is from one
func Change(r float64) float64 {
	return math.Max(r, 1/r)
}

// ChangeSlice applies Change elementwise to r storing the result in dst
func ChangeSlice(dst, r []float64) {
	for i, v := range r {
		dst[i] = Change(v)
	}
}

// Sz returns the equivalent side length of a box padded with half its
// perimeter
func Sz(w, h float64) float64 {
	pad := (w + h) * 0.5
	return math.Sqrt((w + pad) * (h + pad))
}

// clamp restricts the value x to be within the range min and max
func clamp(val, min, max float64) float64 {

	if val < min {
		return min
	}

	if val > max {
		return max
	}

	return val
}
