package tracker

import (
	"math"
	"testing"
)

// almostEqual checks if two float64 values are almost equal
func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestChange(t *testing.T) {

	if Change(1) != 1 {
		t.Errorf("Change(1) = %f, expected 1", Change(1))
	}

	for _, r := range []float64{0.01, 0.33, 0.5, 0.999, 1.5, 2, 3, 100} {
		c := Change(r)

		if c < 1 {
			t.Errorf("Change(%f) = %f, expected >= 1", r, c)
		}

		if !almostEqual(c, Change(1/r), 1e-12) {
			t.Errorf("Change(%f) = %f differs from Change(1/%f) = %f", r, c, r, Change(1/r))
		}
	}
}

func TestChangeSlice(t *testing.T) {

	in := []float64{0.5, 1, 4}
	out := make([]float64, len(in))

	ChangeSlice(out, in)

	expect := []float64{2, 1, 4}

	for i := range expect {
		if out[i] != expect[i] {
			t.Errorf("index %d: got %f, expected %f", i, out[i], expect[i])
		}
	}
}

func TestSz(t *testing.T) {

	tests := []struct {
		w, h     float64
		expected float64
	}{
		{10, 10, 20},
		{50, 50, 100},
		{63.5, 63.5, 127},
		{100, 50, math.Sqrt(175 * 125)},
	}

	for _, tc := range tests {
		if got := Sz(tc.w, tc.h); !almostEqual(got, tc.expected, 1e-9) {
			t.Errorf("Sz(%f, %f) = %f, expected %f", tc.w, tc.h, got, tc.expected)
		}

		if !almostEqual(Sz(tc.w, tc.h), Sz(tc.h, tc.w), 1e-12) {
			t.Errorf("Sz(%f, %f) is not symmetric", tc.w, tc.h)
		}
	}
}
