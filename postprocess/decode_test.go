package postprocess

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestConvertScore(t *testing.T) {

	// two anchors, background logits first then foreground
	cls := Tensor{
		Data:  []float32{0, 2, 0, -2},
		Shape: []int{1, 2, 1, 2},
	}

	got, err := ConvertScore(cls, 2)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expect := []float64{0.5, 1 / (1 + math.Exp(4))}

	if diff := cmp.Diff(expect, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("score mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertScoreLargeLogits(t *testing.T) {

	cls := Tensor{Data: []float32{-1000, 1000}}

	got, err := ConvertScore(cls, 1)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.IsNaN(got[0]) || math.Abs(got[0]-1) > 1e-9 {
		t.Errorf("expected score of 1, got %f", got[0])
	}
}

func TestConvertScoreShapeMismatch(t *testing.T) {

	_, err := ConvertScore(Tensor{Data: make([]float32, 5)}, 3)

	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestConvertBBox(t *testing.T) {

	g, err := NewAnchorGrid(defaultAnchorParams())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n := g.Len()
	loc := NewTensor(1, 4*g.AnchorNum, g.ScoreSize, g.ScoreSize)

	// zero deltas decode to the anchors themselves
	boxes, err := ConvertBBox(loc, g)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opt := cmpopts.EquateApprox(0, 1e-9)

	if diff := cmp.Diff(g.CX, boxes.CX, opt); diff != "" {
		t.Errorf("cx mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(g.W, boxes.W, opt); diff != "" {
		t.Errorf("w mismatch (-want +got):\n%s", diff)
	}

	// shift and scale a single anchor
	i := 2*625 + 12*25 + 12
	loc.Data[i] = 0.5
	loc.Data[n+i] = -0.25
	loc.Data[2*n+i] = float32(math.Log(2))
	loc.Data[3*n+i] = 0

	boxes, err = ConvertBBox(loc, g)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cx, cy, w, h := boxes.At(i)

	if math.Abs(cx-32) > 1e-6 || math.Abs(cy+16) > 1e-6 ||
		math.Abs(w-128) > 1e-4 || math.Abs(h-64) > 1e-6 {
		t.Errorf("decoded box (%f, %f, %f, %f), expected (32, -16, 128, 64)", cx, cy, w, h)
	}
}

func TestConvertBBoxShapeMismatch(t *testing.T) {

	g, _ := NewAnchorGrid(defaultAnchorParams())

	_, err := ConvertBBox(NewTensor(1, 4, 25, 25), g)

	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}
