package siamtrack

import (
	"errors"
	"testing"

	"github.com/swdee/go-siamtrack/postprocess"
)

// seqTensor returns a [1, C, H, W] tensor holding 1, 2, 3...
func seqTensor(c, h, w int) postprocess.Tensor {

	t := postprocess.NewTensor(1, c, h, w)

	for i := range t.Data {
		t.Data[i] = float32(i + 1)
	}

	return t
}

func TestCropNCHWInside(t *testing.T) {

	src := seqTensor(2, 4, 4)

	out, err := cropNCHW(src, 0, 1, 2, 2)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float32{
		// channel 0 rows 1-2, cols 2-3
		7, 8, 11, 12,
		// channel 1
		23, 24, 27, 28,
	}

	if len(out.Data) != len(want) {
		t.Fatalf("got %d elements, expected %d", len(out.Data), len(want))
	}

	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("element %d = %v, expected %v", i, out.Data[i], want[i])
		}
	}
}

func TestCropNCHWPadding(t *testing.T) {

	src := seqTensor(1, 2, 2)

	// padded to 4x4, the full window has a zero border
	out, err := cropNCHW(src, 1, 0, 0, 4)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float32{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
		0, 0, 0, 0,
	}

	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("element %d = %v, expected %v", i, out.Data[i], want[i])
		}
	}

	if len(out.Shape) != 4 || out.Shape[2] != 4 || out.Shape[3] != 4 {
		t.Errorf("shape %v, expected [1 1 4 4]", out.Shape)
	}
}

func TestCropNCHWVector(t *testing.T) {

	src := seqTensor(3, 5, 5)

	out, err := cropNCHW(src, 0, 2, 3, 1)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// feature vector at row 2 col 3 of every channel
	want := []float32{14, 39, 64}

	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("channel %d = %v, expected %v", i, out.Data[i], want[i])
		}
	}
}

func TestCropNCHWErrors(t *testing.T) {

	tests := []struct {
		name string
		t    postprocess.Tensor
		y, x int
		size int
	}{
		{"bad rank", postprocess.NewTensor(3, 4, 4), 0, 0, 1},
		{"outside", seqTensor(1, 4, 4), 2, 2, 3},
		{"negative", seqTensor(1, 4, 4), -1, 0, 1},
		{"data mismatch", postprocess.Tensor{Data: make([]float32, 3), Shape: []int{1, 1, 2, 2}}, 0, 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cropNCHW(tc.t, 0, tc.y, tc.x, tc.size)

			if !errors.Is(err, postprocess.ErrShapeMismatch) {
				t.Errorf("expected ErrShapeMismatch, got %v", err)
			}
		})
	}
}

func TestRefineCropsCoverScoreMap(t *testing.T) {

	// the refine crops at the last score map position must fit inside the
	// padded backbone features of a 255 search patch
	features := []int{125, 63, 31}
	last := 24

	for i, c := range refineCrops {
		if last*c.step+c.size > features[i]+2*c.pad {
			t.Errorf("crop %d does not fit %d padded by %d", i, features[i], c.pad)
		}
	}
}

func TestNewSiamRPNPPMissingModels(t *testing.T) {

	if _, err := NewSiamRPNPP(SiamRPNPPModels{}, NPUCoreAuto); err == nil {
		t.Error("expected error for missing models")
	}

	_, err := NewSiamRPNPP(SiamRPNPPModels{
		TemplateBackbone: "a.rknn",
		SearchBackbone:   "b.rknn",
		Head:             "c.rknn",
		TemplateNeck:     "d.rknn",
	}, NPUCoreAuto)

	if err == nil {
		t.Error("expected error for unpaired neck models")
	}

	if _, err := NewSiamMask(SiamMaskModels{}, NPUCoreAuto); err == nil {
		t.Error("expected error for missing mask models")
	}
}
