package tracker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-siamtrack/postprocess"
)

// anchorBoxes returns candidate boxes equal to the anchors of the grid
func anchorBoxes(g *postprocess.AnchorGrid) postprocess.CandidateBoxes {
	return postprocess.CandidateBoxes{
		CX: append([]float64(nil), g.CX...),
		CY: append([]float64(nil), g.CY...),
		W:  append([]float64(nil), g.W...),
		H:  append([]float64(nil), g.H...),
	}
}

func newTestSelector(t *testing.T, p Params) (*Selector, *postprocess.AnchorGrid) {
	g, err := postprocess.NewAnchorGrid(p.anchorParams())
	require.NoError(t, err)
	return NewSelector(g, p), g
}

func TestSelectDominantCandidate(t *testing.T) {

	p := SiamRPNPPParams()
	sel, g := newTestSelector(t, p)

	s := g.ScoreSize
	best := 2*s*s + 5*s + 20

	score := make([]float64, g.Len())
	score[best] = 1

	prev := NewRect(100, 100, 50, 50)
	scaleZ := 127.0 / 100.0

	res, err := sel.Select(score, anchorBoxes(g), prev, scaleZ, 640, 480)
	require.NoError(t, err)

	assert.Equal(t, best, res.Index)
	assert.Equal(t, 2, res.Anchor)
	assert.Equal(t, 5, res.Row)
	assert.Equal(t, 20, res.Col)
	assert.Equal(t, 1.0, res.Score)

	// center moves fully to the candidate
	cx, cy := res.Box.Center()
	assert.InDelta(t, 125+64/scaleZ, cx, 1e-3)
	assert.InDelta(t, 125-56/scaleZ, cy, 1e-3)

	// size is damped towards the candidate
	assert.InDelta(t, res.PScore*res.Penalty*p.LR, res.LR, 1e-12)
	expectW := 50*(1-res.LR) + (64/scaleZ)*res.LR
	assert.InDelta(t, expectW, float64(res.Box.Width), 1e-3)
}

func TestSelectTieBreak(t *testing.T) {

	p := SiamRPNPPParams()
	p.WindowInfluence = 0
	sel, g := newTestSelector(t, p)

	// identical square candidates and scores everywhere
	boxes := anchorBoxes(g)

	for i := range boxes.W {
		boxes.W[i] = 64
		boxes.H[i] = 64
	}

	score := make([]float64, g.Len())

	for i := range score {
		score[i] = 0.5
	}

	res, err := sel.Select(score, boxes, NewRect(100, 100, 50, 50), 1.27, 640, 480)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Index)
}

func TestPenalty(t *testing.T) {

	p := SiamRPNPPParams()
	sel, g := newTestSelector(t, p)

	boxes := anchorBoxes(g)
	pen := sel.Penalty(boxes, 50, 50, 127.0/100.0)

	require.Len(t, pen, g.Len())

	for i, v := range pen {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Fatalf("penalty[%d] = %f outside [0, 1]", i, v)
		}
	}

	// square anchor matches a square target best
	s2 := g.ScoreSize * g.ScoreSize
	assert.Greater(t, pen[2*s2], pen[0])
	assert.Greater(t, pen[2*s2], pen[4*s2])

	// identical size and aspect gives no penalty
	boxes.W[0], boxes.H[0] = 63.5, 63.5
	pen = sel.Penalty(boxes, 50, 50, 1.27)
	assert.InDelta(t, 1.0, pen[0], 1e-12)
}

func TestSelectClipsToFrame(t *testing.T) {

	p := SiamRPNPPParams()
	p.PenaltyK = 0
	p.WindowInfluence = 0
	sel, g := newTestSelector(t, p)

	s := g.ScoreSize
	// far right column, square anchor
	best := 2*s*s + 12*s + (s - 1)

	score := make([]float64, g.Len())
	score[best] = 1

	boxes := anchorBoxes(g)
	// grow the winner well beyond the frame
	boxes.W[best] = 4000
	boxes.H[best] = 4000

	res, err := sel.Select(score, boxes, NewRect(60, 40, 30, 30), 1, 100, 80)
	require.NoError(t, err)
	require.Equal(t, best, res.Index)

	cx, _ := res.Box.Center()
	assert.InDelta(t, 100, cx, 1e-3)
	assert.InDelta(t, 100, float64(res.Box.Width), 1e-3)
	assert.InDelta(t, 80, float64(res.Box.Height), 1e-3)
}

func TestSelectMinBoxSize(t *testing.T) {

	p := SiamRPNPPParams()
	p.PenaltyK = 0
	p.WindowInfluence = 0
	sel, g := newTestSelector(t, p)

	s := g.ScoreSize
	best := 2*s*s + 12*s + 12

	score := make([]float64, g.Len())
	score[best] = 1

	boxes := anchorBoxes(g)
	boxes.W[best] = 0.01
	boxes.H[best] = 0.01

	res, err := sel.Select(score, boxes, NewRect(100, 100, 10, 10), 1, 640, 480)
	require.NoError(t, err)

	assert.Equal(t, float32(p.MinBoxSize), res.Box.Width)
	assert.Equal(t, float32(p.MinBoxSize), res.Box.Height)
}

func TestSelectSmoothCenter(t *testing.T) {

	p := SiamRPNPPParams()
	p.SmoothCenter = true
	sel, g := newTestSelector(t, p)

	s := g.ScoreSize
	best := 2*s*s + 12*s + 14

	score := make([]float64, g.Len())
	score[best] = 1

	res, err := sel.Select(score, anchorBoxes(g), NewRect(100, 100, 50, 50), 1, 640, 480)
	require.NoError(t, err)
	require.Equal(t, best, res.Index)

	cx, cy := res.Box.Center()
	assert.InDelta(t, 125+16*res.LR, cx, 1e-3)
	assert.InDelta(t, 125, cy, 1e-3)
}

func TestSelectNonFinite(t *testing.T) {

	sel, g := newTestSelector(t, SiamRPNPPParams())

	score := make([]float64, g.Len())
	prev := NewRect(100, 100, 50, 50)

	tests := []struct {
		name  string
		apply func(b *postprocess.CandidateBoxes)
	}{
		{"infinite width", func(b *postprocess.CandidateBoxes) {
			for i := range b.W {
				b.W[i] = math.Inf(1)
			}
		}},
		{"nan center", func(b *postprocess.CandidateBoxes) {
			for i := range b.CX {
				b.CX[i] = math.NaN()
			}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			boxes := anchorBoxes(g)
			tc.apply(&boxes)

			res, err := sel.Select(score, boxes, prev, 1.27, 640, 480)
			assert.ErrorIs(t, err, ErrNonFiniteBox)
			assert.Equal(t, Selection{}, res)
		})
	}
}

func TestSelectShapeMismatch(t *testing.T) {

	sel, g := newTestSelector(t, SiamRPNPPParams())

	_, err := sel.Select(make([]float64, 3), anchorBoxes(g), NewRect(0, 0, 10, 10), 1, 100, 100)
	assert.ErrorIs(t, err, postprocess.ErrShapeMismatch)
}
