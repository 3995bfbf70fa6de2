package postprocess

import (
	"fmt"
	"math"
)

// CandidateBoxes are the decoded per anchor boxes in center form.  They live
// in the search patch coordinate frame, relative to the patch center and in
// network input pixels, not in frame pixels
type CandidateBoxes struct {
	CX []float64
	CY []float64
	W  []float64
	H  []float64
}

// Len returns the number of candidates
func (c CandidateBoxes) Len() int {
	return len(c.CX)
}

// At returns the candidate box at index i
func (c CandidateBoxes) At(i int) (cx, cy, w, h float64) {
	return c.CX[i], c.CY[i], c.W[i], c.H[i]
}

// ConvertScore takes the classification output of shape [1, 2A, S, S] and
// returns the foreground probability for each of the n = A*S*S anchors.  The
// first A channels hold the background logits and the next A channels the
// foreground logits
func ConvertScore(cls Tensor, n int) ([]float64, error) {

	if len(cls.Data) != 2*n {
		return nil, fmt.Errorf("classification output has %d elements, expected %d: %w",
			len(cls.Data), 2*n, ErrShapeMismatch)
	}

	score := make([]float64, n)

	for i := 0; i < n; i++ {
		_, score[i] = softmax2(float64(cls.Data[i]), float64(cls.Data[n+i]))
	}

	return score, nil
}

// ConvertBBox takes the regression output of shape [1, 4A, S, S] and decodes
// the deltas against the anchor grid into candidate boxes
func ConvertBBox(loc Tensor, grid *AnchorGrid) (CandidateBoxes, error) {

	n := grid.Len()

	if len(loc.Data) != 4*n {
		return CandidateBoxes{}, fmt.Errorf("regression output has %d elements, expected %d: %w",
			len(loc.Data), 4*n, ErrShapeMismatch)
	}

	boxes := CandidateBoxes{
		CX: make([]float64, n),
		CY: make([]float64, n),
		W:  make([]float64, n),
		H:  make([]float64, n),
	}

	for i := 0; i < n; i++ {
		dx := float64(loc.Data[i])
		dy := float64(loc.Data[n+i])
		dw := float64(loc.Data[2*n+i])
		dh := float64(loc.Data[3*n+i])

		boxes.CX[i] = dx*grid.W[i] + grid.CX[i]
		boxes.CY[i] = dy*grid.H[i] + grid.CY[i]
		boxes.W[i] = math.Exp(dw) * grid.W[i]
		boxes.H[i] = math.Exp(dh) * grid.H[i]
	}

	return boxes, nil
}
