package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/swdee/go-siamtrack/postprocess"
	"gocv.io/x/gocv"
)

// ErrInvalidSize is returned when a patch is requested with a non positive
// size or from an empty frame
var ErrInvalidSize = errors.New("invalid patch size")

// Context is the square window sampled from the frame along with the amount
// of padding needed where the window extends past the frame edges
type Context struct {
	// XMin, YMin, XMax, YMax are the inclusive window bounds in frame pixels,
	// these may lie outside the frame
	XMin int
	YMin int
	XMax int
	YMax int
	// pad amounts for each side of the frame
	LeftPad   int
	TopPad    int
	RightPad  int
	BottomPad int
}

// NewContext calculates the window of side originalSize centered on (cx, cy)
// and the padding required to sample it from a frame of the given size
func NewContext(cx, cy float64, originalSize, frameW, frameH int) Context {

	c := float64(originalSize+1) / 2

	ctx := Context{
		XMin: int(math.Floor(cx - c + 0.5)),
		YMin: int(math.Floor(cy - c + 0.5)),
	}

	ctx.XMax = ctx.XMin + originalSize - 1
	ctx.YMax = ctx.YMin + originalSize - 1

	ctx.LeftPad = max(0, -ctx.XMin)
	ctx.TopPad = max(0, -ctx.YMin)
	ctx.RightPad = max(0, ctx.XMax-frameW+1)
	ctx.BottomPad = max(0, ctx.YMax-frameH+1)

	return ctx
}

// Padded returns true if any side of the window lies outside the frame
func (c Context) Padded() bool {
	return c.LeftPad > 0 || c.TopPad > 0 || c.RightPad > 0 || c.BottomPad > 0
}

// Patch is a square image sampled from a frame and resized to the network
// input size
type Patch struct {
	// Mat is the HWC uint8 patch in the frame's channel order
	Mat gocv.Mat
	// Context is the frame window the patch was sampled from
	Context Context
}

// Close frees the patch Mat
func (p *Patch) Close() error {
	return p.Mat.Close()
}

// NCHW returns the patch as a float32 tensor of shape [1, C, H, W] with pixel
// values left unscaled
func (p *Patch) NCHW() (postprocess.Tensor, error) {

	size := image.Pt(p.Mat.Cols(), p.Mat.Rows())

	blob := gocv.BlobFromImage(p.Mat, 1.0, size, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()

	if err != nil {
		return postprocess.Tensor{}, fmt.Errorf("error getting blob data: %w", err)
	}

	return postprocess.Tensor{
		Data:  append([]float32(nil), data...),
		Shape: []int{1, p.Mat.Channels(), size.Y, size.X},
	}, nil
}

// CalcSZ returns the side length of the square context region around a box of
// the given width and height
func CalcSZ(w, h, contextAmount float64) float64 {
	wz := w + contextAmount*(w+h)
	hz := h + contextAmount*(w+h)
	return math.Round(math.Sqrt(wz * hz))
}

// ChannelAverage returns the per channel mean of the frame as a color used to
// fill patch padding.  The frame is expected to be in BGR order
func ChannelAverage(frame gocv.Mat) color.RGBA {

	mean := frame.Mean()

	return color.RGBA{
		R: uint8(math.Round(mean.Val3)),
		G: uint8(math.Round(mean.Val2)),
		B: uint8(math.Round(mean.Val1)),
		A: 0,
	}
}

// Sampler extracts square patches from frames, padding with a constant color
// where the patch extends past the frame edges
type Sampler struct {
	// padMat holds the border padded frame between calls
	padMat gocv.Mat
}

// NewSampler returns a patch sampler
func NewSampler() *Sampler {
	return &Sampler{
		padMat: gocv.NewMat(),
	}
}

// Close frees memory allocated by the sampler
func (s *Sampler) Close() error {
	return s.padMat.Close()
}

// Subwindow samples a square of side originalSize centered on (cx, cy) from
// the frame and resizes it to modelSize.  Areas outside of the frame are
// filled with avg.  Windows entirely outside of the frame result in a patch
// made only of padding
func (s *Sampler) Subwindow(frame gocv.Mat, cx, cy float64, modelSize,
	originalSize int, avg color.RGBA) (Patch, error) {

	if modelSize <= 0 || originalSize <= 0 {
		return Patch{}, fmt.Errorf("model size %d, original size %d: %w",
			modelSize, originalSize, ErrInvalidSize)
	}

	if frame.Empty() {
		return Patch{}, fmt.Errorf("empty frame: %w", ErrInvalidSize)
	}

	ctx := NewContext(cx, cy, originalSize, frame.Cols(), frame.Rows())

	src := frame
	offsetX, offsetY := ctx.XMin, ctx.YMin

	if ctx.Padded() {
		gocv.CopyMakeBorder(frame, &s.padMat, ctx.TopPad, ctx.BottomPad,
			ctx.LeftPad, ctx.RightPad, gocv.BorderConstant, avg)

		src = s.padMat
		offsetX += ctx.LeftPad
		offsetY += ctx.TopPad
	}

	region := src.Region(image.Rect(offsetX, offsetY,
		offsetX+originalSize, offsetY+originalSize))
	defer region.Close()

	patch := Patch{
		Mat:     gocv.NewMat(),
		Context: ctx,
	}

	if modelSize != originalSize {
		gocv.Resize(region, &patch.Mat, image.Pt(modelSize, modelSize),
			0, 0, gocv.InterpolationLinear)
	} else {
		region.CopyTo(&patch.Mat)
	}

	return patch, nil
}

// Subwindow is a convenience function that samples a single patch with a
// temporary Sampler
func Subwindow(frame gocv.Mat, cx, cy float64, modelSize, originalSize int,
	avg color.RGBA) (Patch, error) {

	s := NewSampler()
	defer s.Close()

	return s.Subwindow(frame, cx, cy, modelSize, originalSize, avg)
}
