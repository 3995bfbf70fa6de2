package postprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultAnchorParams() AnchorParams {
	return AnchorParams{
		ExemplarSize: 127,
		InstanceSize: 255,
		BaseSize:     8,
		Stride:       8,
		Ratios:       []float64{0.33, 0.5, 1, 2, 3},
		Scales:       []float64{8},
	}
}

func TestAnchorGridGeometry(t *testing.T) {

	p := defaultAnchorParams()

	assert.Equal(t, 25, p.ScoreSize())
	assert.Equal(t, 5, p.AnchorNum())

	g, err := NewAnchorGrid(p)
	require.NoError(t, err)

	assert.Equal(t, 5*25*25, g.Len())
	assert.Len(t, g.Window, g.Len())

	// anchor sizes per ratio with truncated base widths
	tests := []struct {
		anchor int
		w, h   float64
	}{
		{0, 104, 32},
		{1, 88, 40},
		{2, 64, 64},
		{3, 40, 80},
		{4, 32, 96},
	}

	cells := 25 * 25

	for _, tc := range tests {
		idx := tc.anchor*cells + 7*25 + 3
		assert.Equalf(t, tc.w, g.W[idx], "anchor %d width", tc.anchor)
		assert.Equalf(t, tc.h, g.H[idx], "anchor %d height", tc.anchor)
	}

	// grid origin is symmetric about the patch center
	assert.Equal(t, -96.0, g.CX[0])
	assert.Equal(t, -96.0, g.CY[0])
	assert.Equal(t, 96.0, g.CX[24])
	assert.Equal(t, 0.0, g.CX[12*25+12])
	assert.Equal(t, 0.0, g.CY[12*25+12])

	// cx follows the column, cy follows the row
	idx := 2*cells + 3*25 + 10
	assert.Equal(t, float64(-96+8*10), g.CX[idx])
	assert.Equal(t, float64(-96+8*3), g.CY[idx])
}

func TestAnchorGridWindowTiled(t *testing.T) {

	g, err := NewAnchorGrid(defaultAnchorParams())
	require.NoError(t, err)

	cells := 25 * 25

	for a := 1; a < g.AnchorNum; a++ {
		for j := 0; j < cells; j++ {
			if g.Window[a*cells+j] != g.Window[j] {
				t.Fatalf("window not tiled for anchor %d cell %d", a, j)
			}
		}
	}

	// peak at the center cell, zero on the border
	assert.InDelta(t, 1.0, g.Window[12*25+12], 1e-12)
	assert.InDelta(t, 0.0, g.Window[0], 1e-12)
	assert.InDelta(t, 0.0, g.Window[24*25+12], 1e-12)
}

func TestAnchorGridUnravel(t *testing.T) {

	g, err := NewAnchorGrid(defaultAnchorParams())
	require.NoError(t, err)

	tests := []struct {
		idx            int
		anchor, r, col int
	}{
		{0, 0, 0, 0},
		{24, 0, 0, 24},
		{25, 0, 1, 0},
		{625, 1, 0, 0},
		{2*625 + 12*25 + 7, 2, 12, 7},
		{3124, 4, 24, 24},
	}

	for _, tc := range tests {
		a, r, c := g.Unravel(tc.idx)
		assert.Equal(t, []int{tc.anchor, tc.r, tc.col}, []int{a, r, c}, "idx %d", tc.idx)
	}
}

func TestAnchorGridInvalid(t *testing.T) {

	p := defaultAnchorParams()
	p.Stride = 0
	_, err := NewAnchorGrid(p)
	assert.Error(t, err)

	p = defaultAnchorParams()
	p.Ratios = nil
	_, err = NewAnchorGrid(p)
	assert.Error(t, err)

	p = defaultAnchorParams()
	p.Scales = []float64{-1}
	_, err = NewAnchorGrid(p)
	assert.Error(t, err)
}

func TestHannWindow(t *testing.T) {

	w := HannWindow(5)
	expect := []float64{0, 0.5, 1, 0.5, 0}

	for i := range expect {
		if math.Abs(w[i]-expect[i]) > 1e-12 {
			t.Errorf("hann[%d] = %f, expected %f", i, w[i], expect[i])
		}
	}

	assert.Panics(t, func() { HannWindow(1) })
}
