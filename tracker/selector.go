package tracker

import (
	"errors"
	"fmt"
	"math"

	"github.com/swdee/go-siamtrack/postprocess"
	"gonum.org/v1/gonum/floats"
)

// ErrNonFiniteBox is returned when the winning candidate or the box it
// produces has a NaN or infinite coordinate
var ErrNonFiniteBox = errors.New("non-finite candidate box")

// Selection is the winning candidate of a frame and the box it produces
type Selection struct {
	// Index is the flat anchor index of the winning candidate
	Index int
	// Anchor, Row and Col locate the winner on the score map
	Anchor int
	Row    int
	Col    int
	// Score is the foreground probability of the winner
	Score float64
	// PScore is the penalized and window weighted score of the winner
	PScore float64
	// Penalty is the scale and aspect change penalty of the winner
	Penalty float64
	// LR is the update rate applied to the box
	LR float64
	// Box is the updated box in frame coordinates
	Box Rect
}

// Selector picks the best candidate of a frame and blends it into the
// previous box
type Selector struct {
	grid   *postprocess.AnchorGrid
	params Params
	// per frame scratch buffers
	penalty []float64
	pscore  []float64
	sc      []float64
	rc      []float64
}

// NewSelector returns a candidate selector for the anchor grid
func NewSelector(grid *postprocess.AnchorGrid, p Params) *Selector {
	return &Selector{
		grid:    grid,
		params:  p,
		penalty: make([]float64, grid.Len()),
		pscore:  make([]float64, grid.Len()),
		sc:      make([]float64, grid.Len()),
		rc:      make([]float64, grid.Len()),
	}
}

// Penalty returns the scale and aspect change penalty for every candidate
// given the previous box size in frame pixels.  The returned slice is reused
// on the next call
func (s *Selector) Penalty(boxes postprocess.CandidateBoxes, prevW, prevH, scaleZ float64) []float64 {

	k := s.params.PenaltyK
	target := Sz(prevW*scaleZ, prevH*scaleZ)
	ratio := prevW / prevH

	for i := range s.penalty {
		s.sc[i] = Sz(boxes.W[i], boxes.H[i]) / target
		s.rc[i] = ratio / (boxes.W[i] / boxes.H[i])
	}

	ChangeSlice(s.sc, s.sc)
	ChangeSlice(s.rc, s.rc)

	for i := range s.penalty {
		p := math.Exp(-(s.rc[i]*s.sc[i] - 1) * k)

		if math.IsNaN(p) {
			p = 0
		}

		s.penalty[i] = clamp(p, 0, 1)
	}

	return s.penalty
}

// PScore combines the penalized scores with the cosine window.  The returned
// slice is reused on the next call
func (s *Selector) PScore(score, penalty []float64) []float64 {

	wi := s.params.WindowInfluence

	floats.MulTo(s.pscore, penalty, score)
	floats.Scale(1-wi, s.pscore)
	floats.AddScaled(s.pscore, wi, s.grid.Window)

	return s.pscore
}

// Select finds the best candidate and returns the updated box.  prev is the
// box used to sample the search patch, scaleZ the frame to network input
// scale of that patch
func (s *Selector) Select(score []float64, boxes postprocess.CandidateBoxes,
	prev Rect, scaleZ float64, frameW, frameH int) (Selection, error) {

	n := s.grid.Len()

	if len(score) != n || boxes.Len() != n {
		return Selection{}, fmt.Errorf("got %d scores and %d boxes for %d anchors: %w",
			len(score), boxes.Len(), n, postprocess.ErrShapeMismatch)
	}

	prevW := float64(prev.Width)
	prevH := float64(prev.Height)

	penalty := s.Penalty(boxes, prevW, prevH, scaleZ)
	pscore := s.PScore(score, penalty)

	best := floats.MaxIdx(pscore)

	sel := Selection{
		Index:   best,
		Score:   score[best],
		PScore:  pscore[best],
		Penalty: penalty[best],
	}

	sel.Anchor, sel.Row, sel.Col = s.grid.Unravel(best)
	sel.LR = sel.PScore * sel.Penalty * s.params.LR

	// winning box from network input pixels to frame pixels
	bcx, bcy, bw, bh := boxes.At(best)
	bcx /= scaleZ
	bcy /= scaleZ
	bw /= scaleZ
	bh /= scaleZ

	if !finite(bcx, bcy, bw, bh, sel.PScore) {
		return Selection{}, fmt.Errorf("candidate %d (%f, %f, %f, %f) pscore %f: %w",
			best, bcx, bcy, bw, bh, sel.PScore, ErrNonFiniteBox)
	}

	prevCX, prevCY := prev.Center()
	cx := prevCX + bcx
	cy := prevCY + bcy

	if s.params.SmoothCenter {
		cx = prevCX + bcx*sel.LR
		cy = prevCY + bcy*sel.LR
	}

	w := prevW*(1-sel.LR) + bw*sel.LR
	h := prevH*(1-sel.LR) + bh*sel.LR

	fw := float64(frameW)
	fh := float64(frameH)

	cx = clamp(cx, 0, fw)
	cy = clamp(cy, 0, fh)
	w = math.Max(s.params.MinBoxSize, math.Min(fw*s.params.MaxBoxFraction, w))
	h = math.Max(s.params.MinBoxSize, math.Min(fh*s.params.MaxBoxFraction, h))

	if !finite(cx, cy, w, h) {
		return Selection{}, fmt.Errorf("updated box (%f, %f, %f, %f): %w",
			cx, cy, w, h, ErrNonFiniteBox)
	}

	sel.Box = NewRectFromCenter(cx, cy, w, h)

	return sel, nil
}

// finite returns true when none of the values is NaN or infinite
func finite(vals ...float64) bool {

	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}
