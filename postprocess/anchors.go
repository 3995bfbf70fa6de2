package postprocess

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AnchorParams defines the fixed tracker configuration the anchor grid is
// derived from
type AnchorParams struct {
	// ExemplarSize is the side length of the template patch fed to the network
	ExemplarSize int
	// InstanceSize is the side length of the search patch fed to the network
	InstanceSize int
	// BaseSize is the extra number of score cells the head produces
	BaseSize int
	// Stride is the anchor stride in search patch pixels
	Stride int
	// Ratios are the anchor aspect ratios (height/width)
	Ratios []float64
	// Scales are the anchor scales
	Scales []float64
}

// ScoreSize returns the side length of the score map produced by the head
func (p AnchorParams) ScoreSize() int {
	return (p.InstanceSize-p.ExemplarSize)/p.Stride + 1 + p.BaseSize
}

// AnchorNum returns the number of anchors per score map cell
func (p AnchorParams) AnchorNum() int {
	return len(p.Ratios) * len(p.Scales)
}

// AnchorGrid holds the anchors for every cell of the score map in center form
// along with the matching cosine window.  All slices share the same ordering,
// anchor major then row then column, ie: idx = a*S*S + row*S + col
type AnchorGrid struct {
	CX     []float64
	CY     []float64
	W      []float64
	H      []float64
	Window []float64
	// ScoreSize is the side length S of the score map
	ScoreSize int
	// AnchorNum is the number of ratio/scale combinations
	AnchorNum int
	// Stride is the anchor stride in search patch pixels
	Stride int
}

// NewAnchorGrid generates the anchor grid and cosine window for the given
// tracker configuration
func NewAnchorGrid(p AnchorParams) (*AnchorGrid, error) {

	if p.Stride <= 0 || p.ExemplarSize <= 0 || p.InstanceSize < p.ExemplarSize {
		return nil, fmt.Errorf("invalid anchor geometry exemplar=%d instance=%d stride=%d",
			p.ExemplarSize, p.InstanceSize, p.Stride)
	}

	if len(p.Ratios) == 0 || len(p.Scales) == 0 {
		return nil, fmt.Errorf("anchor ratios and scales must not be empty")
	}

	for _, r := range p.Ratios {
		if r <= 0 {
			return nil, fmt.Errorf("anchor ratio must be positive, got %f", r)
		}
	}

	for _, s := range p.Scales {
		if s <= 0 {
			return nil, fmt.Errorf("anchor scale must be positive, got %f", s)
		}
	}

	scoreSize := p.ScoreSize()

	if scoreSize < 2 {
		return nil, fmt.Errorf("score size %d is too small for a cosine window", scoreSize)
	}

	anchorNum := p.AnchorNum()
	cells := scoreSize * scoreSize
	total := anchorNum * cells

	g := &AnchorGrid{
		CX:        make([]float64, total),
		CY:        make([]float64, total),
		W:         make([]float64, total),
		H:         make([]float64, total),
		Window:    make([]float64, total),
		ScoreSize: scoreSize,
		AnchorNum: anchorNum,
		Stride:    p.Stride,
	}

	// base anchors, widths are truncated to whole pixels before scaling
	size := float64(p.Stride * p.Stride)
	baseW := make([]float64, 0, anchorNum)
	baseH := make([]float64, 0, anchorNum)

	for _, r := range p.Ratios {
		ws := math.Trunc(math.Sqrt(size / r))
		hs := math.Trunc(ws * r)

		for _, s := range p.Scales {
			w := ws * s
			h := hs * s

			// corner form (-w/2, -h/2, w/2, h/2) to center form
			x1, y1, x2, y2 := -w/2, -h/2, w/2, h/2
			baseW = append(baseW, x2-x1)
			baseH = append(baseH, y2-y1)
		}
	}

	ori := -(scoreSize / 2) * p.Stride
	cells2D := g.outerWindow(HannWindow(scoreSize))

	for a := 0; a < anchorNum; a++ {
		for row := 0; row < scoreSize; row++ {
			for col := 0; col < scoreSize; col++ {
				j := row*scoreSize + col
				idx := a*cells + j

				g.CX[idx] = float64(ori + p.Stride*col)
				g.CY[idx] = float64(ori + p.Stride*row)
				g.W[idx] = baseW[a]
				g.H[idx] = baseH[a]
				g.Window[idx] = cells2D[j]
			}
		}
	}

	return g, nil
}

// outerWindow returns the flattened outer product of the 1D window with itself
func (g *AnchorGrid) outerWindow(hann []float64) []float64 {

	v := mat.NewVecDense(len(hann), hann)

	var outer mat.Dense
	outer.Outer(1, v, v)

	out := make([]float64, 0, len(hann)*len(hann))

	for i := 0; i < len(hann); i++ {
		out = append(out, outer.RawRowView(i)...)
	}

	return out
}

// Len returns the number of anchors in the grid
func (g *AnchorGrid) Len() int {
	return len(g.CX)
}

// Unravel converts a flat anchor index into its anchor, score map row and
// column
func (g *AnchorGrid) Unravel(idx int) (anchor, row, col int) {
	cells := g.ScoreSize * g.ScoreSize
	anchor = idx / cells
	rem := idx % cells
	return anchor, rem / g.ScoreSize, rem % g.ScoreSize
}

// HannWindow returns a Hann window of length n.  n must be at least 2
func HannWindow(n int) []float64 {

	if n < 2 {
		panic(fmt.Sprintf("hann window length must be at least 2, got %d", n))
	}

	w := make([]float64, n)

	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}

	return w
}
