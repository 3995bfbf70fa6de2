package tracker

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-siamtrack/postprocess"
	"gocv.io/x/gocv"
)

var errStub = errors.New("stub failure")

// stubTransform is a feature transform returning fixed head outputs
type stubTransform struct {
	anchors   int
	scoreSize int
	maskSize  int
	// cls and loc are returned by Head, zero tensors when nil
	cls []postprocess.Tensor
	loc []postprocess.Tensor
	// maskLogit is the value of every refine head output element
	maskLogit float32
	// errors returned by each stage
	backboneErr error
	headErr     error
	refineErr   error
	// recorded calls
	patchSizes []int
	refineRow  int
	refineCol  int
}

func newStub(p Params) *stubTransform {
	return &stubTransform{
		anchors:   len(p.Ratios) * len(p.Scales),
		scoreSize: p.ScoreSize(),
		maskSize:  p.MaskOutputSize,
		maskLogit: 10,
	}
}

func (s *stubTransform) Backbone(img gocv.Mat) ([]postprocess.Tensor, error) {

	if s.backboneErr != nil {
		return nil, s.backboneErr
	}

	s.patchSizes = append(s.patchSizes, img.Cols())

	return []postprocess.Tensor{
		postprocess.NewTensor(1, 8, 4, 4),
		postprocess.NewTensor(1, 8, 2, 2),
	}, nil
}

func (s *stubTransform) Neck(features []postprocess.Tensor) ([]postprocess.Tensor, error) {
	return features, nil
}

func (s *stubTransform) Head(template, search []postprocess.Tensor) ([]postprocess.Tensor, []postprocess.Tensor, error) {

	if s.headErr != nil {
		return nil, nil, s.headErr
	}

	cls := s.cls
	loc := s.loc

	if cls == nil {
		cls = []postprocess.Tensor{postprocess.NewTensor(1, 2*s.anchors, s.scoreSize, s.scoreSize)}
	}

	if loc == nil {
		loc = []postprocess.Tensor{postprocess.NewTensor(1, 4*s.anchors, s.scoreSize, s.scoreSize)}
	}

	return cls, loc, nil
}

func (s *stubTransform) MaskHead(template, search []postprocess.Tensor) (postprocess.Tensor, error) {
	return postprocess.NewTensor(1, 8, 1, 1), nil
}

func (s *stubTransform) RefineHead(backbone []postprocess.Tensor, corr postprocess.Tensor, row, col int) (postprocess.Tensor, error) {

	if s.refineErr != nil {
		return postprocess.Tensor{}, s.refineErr
	}

	s.refineRow = row
	s.refineCol = col

	out := postprocess.NewTensor(1, s.maskSize*s.maskSize)

	for i := range out.Data {
		out.Data[i] = s.maskLogit
	}

	return out, nil
}

func uniformFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 120, 150, 0), 480, 640, gocv.MatTypeCV8UC3)
}

func TestTrackBeforeInit(t *testing.T) {

	p := SiamRPNPPParams()
	trk, err := NewSiamRPNPP(newStub(p), p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	_, err = trk.Track(frame)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, trk.Ready())
}

func TestInitInvalidBox(t *testing.T) {

	p := SiamRPNPPParams()
	trk, err := NewSiamRPNPP(newStub(p), p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	err = trk.Init(frame, NewRect(10, 10, 0, 20), Object{})
	assert.ErrorIs(t, err, ErrInvalidBox)

	err = trk.Init(frame, NewRect(10, 10, 20, -5), Object{})
	assert.ErrorIs(t, err, ErrInvalidBox)

	assert.False(t, trk.Ready())
}

func TestInitTransformFailure(t *testing.T) {

	p := SiamRPNPPParams()
	stub := newStub(p)
	stub.backboneErr = errStub

	trk, err := NewSiamRPNPP(stub, p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	err = trk.Init(frame, NewRect(100, 100, 50, 50), Object{})
	assert.ErrorIs(t, err, errStub)
	assert.False(t, trk.Ready())
}

func TestTrackStationary(t *testing.T) {

	p := SiamRPNPPParams()
	stub := newStub(p)

	trk, err := NewSiamRPNPP(stub, p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	init := NewRect(100, 100, 50, 50)
	require.NoError(t, trk.Init(frame, init, Object{ClassID: 1, ClassName: "person"}))

	assert.True(t, trk.Ready())
	assert.NotEmpty(t, trk.Object().ID)

	res, err := trk.Track(frame)
	require.NoError(t, err)
	defer res.Close()

	// exemplar then search patch sizes
	assert.Equal(t, []int{127, 255}, stub.patchSizes)

	cx, cy := res.Box.Center()
	assert.InDelta(t, 125, cx, 1e-3)
	assert.InDelta(t, 125, cy, 1e-3)
	assert.InDelta(t, 50, float64(res.Box.Width), 0.5)
	assert.InDelta(t, 50, float64(res.Box.Height), 0.5)
	assert.InDelta(t, 0.5, float64(res.Score), 1e-6)

	assert.False(t, res.HasMask())
	assert.Equal(t, 0.0, res.Rotated.Angle)
	assert.Len(t, res.Polygon, 4)
	assert.Equal(t, trk.Object(), res.Object)

	assert.Equal(t, res.Box, trk.Box())
	assert.Equal(t, 1, trk.Frames())
}

func TestTrackAveragesHeads(t *testing.T) {

	p := SiamRPNPPParams()
	stub := newStub(p)

	s := p.ScoreSize()
	n := stub.anchors * s * s
	center := 2*s*s + 12*s + 12

	levels := make([]postprocess.Tensor, 3)

	for i := range levels {
		levels[i] = postprocess.NewTensor(1, 2*stub.anchors, s, s)
	}

	// only the first level votes for the center anchor
	levels[0].Data[n+center] = 6

	stub.cls = levels

	trk, err := NewSiamRPNPP(stub, p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	require.NoError(t, trk.Init(frame, NewRect(100, 100, 50, 50), Object{}))

	res, err := trk.Track(frame)
	require.NoError(t, err)
	defer res.Close()

	// softmax of the averaged logits (0, 2)
	assert.InDelta(t, 0.8808, float64(res.Score), 1e-3)
}

func TestTrackFailureKeepsBox(t *testing.T) {

	p := SiamRPNPPParams()
	stub := newStub(p)

	trk, err := NewSiamRPNPP(stub, p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	init := NewRect(100, 100, 50, 50)
	require.NoError(t, trk.Init(frame, init, Object{}))

	stub.headErr = errStub

	_, err = trk.Track(frame)
	assert.ErrorIs(t, err, errStub)
	assert.Equal(t, init, trk.Box())
	assert.Equal(t, 0, trk.Frames())

	// malformed head output
	stub.headErr = nil
	stub.loc = []postprocess.Tensor{postprocess.NewTensor(1, 4, 25, 25)}

	_, err = trk.Track(frame)
	assert.ErrorIs(t, err, postprocess.ErrShapeMismatch)
	assert.Equal(t, init, trk.Box())

	// recovers on the next frame
	stub.loc = nil

	res, err := trk.Track(frame)
	require.NoError(t, err)
	res.Close()

	assert.True(t, trk.Ready())
	assert.Equal(t, 1, trk.Frames())
}

func TestTrackNonFiniteKeepsBox(t *testing.T) {

	p := SiamRPNPPParams()
	stub := newStub(p)

	trk, err := NewSiamRPNPP(stub, p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	init := NewRect(100, 100, 50, 50)
	require.NoError(t, trk.Init(frame, init, Object{}))

	// width deltas overflow exp for every anchor
	n := stub.anchors * stub.scoreSize * stub.scoreSize
	loc := postprocess.NewTensor(1, 4*stub.anchors, stub.scoreSize, stub.scoreSize)

	for i := 0; i < n; i++ {
		loc.Data[2*n+i] = 1000
	}

	stub.loc = []postprocess.Tensor{loc}

	_, err = trk.Track(frame)
	assert.ErrorIs(t, err, ErrNonFiniteBox)
	assert.Equal(t, init, trk.Box())
	assert.Equal(t, 0, trk.Frames())

	// the session keeps tracking once the head output is sane again
	stub.loc = nil

	res, err := trk.Track(frame)
	require.NoError(t, err)
	res.Close()

	assert.Equal(t, 1, trk.Frames())
}

func TestTrackOutsideFrame(t *testing.T) {

	p := SiamRPNPPParams()
	stub := newStub(p)

	trk, err := NewSiamRPNPP(stub, p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	// box beyond the bottom right corner still tracks on a padded patch
	require.NoError(t, trk.Init(frame, NewRect(700, 520, 40, 40), Object{}))

	res, err := trk.Track(frame)
	require.NoError(t, err)
	defer res.Close()

	// center is clipped to the frame
	cx, cy := res.Box.Center()
	assert.InDelta(t, 640, cx, 1e-3)
	assert.InDelta(t, 480, cy, 1e-3)
}

func TestSiamMaskTrack(t *testing.T) {

	p := SiamMaskParams()
	stub := newStub(p)

	trk, err := NewSiamMask(stub, p)
	require.NoError(t, err)
	defer trk.Close()

	assert.True(t, trk.IsMask())

	frame := uniformFrame()
	defer frame.Close()

	require.NoError(t, trk.Init(frame, NewRect(100, 100, 50, 50), Object{}))

	res, err := trk.Track(frame)
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, 12, stub.refineRow)
	assert.Equal(t, 12, stub.refineCol)

	require.True(t, res.HasMask())
	assert.Equal(t, 640, res.Mask.Cols())
	assert.Equal(t, 480, res.Mask.Rows())
	assert.GreaterOrEqual(t, res.Contours.Size(), 1)

	// an all foreground mask covers the exemplar sized region of the search
	// crop around the previous center, about 100 pixels square
	assert.InDelta(t, 125, res.Rotated.Center.X, 3)
	assert.InDelta(t, 125, res.Rotated.Center.Y, 3)
	assert.InDelta(t, 100, res.Rotated.BoundingRect.Dx(), 6)
	assert.InDelta(t, 100, res.Rotated.BoundingRect.Dy(), 6)

	for _, pt := range res.Polygon {
		assert.True(t, pt.In(image.Rect(0, 0, 640, 480)))
	}
}

func TestSiamMaskFallback(t *testing.T) {

	p := SiamMaskParams()
	stub := newStub(p)
	stub.maskLogit = -10

	trk, err := NewSiamMask(stub, p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	require.NoError(t, trk.Init(frame, NewRect(100, 100, 50, 50), Object{}))

	res, err := trk.Track(frame)
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, 0, res.Contours.Size())
	assert.Equal(t, res.Box.Image(), res.Rotated.BoundingRect)
	assert.Equal(t, 0.0, res.Rotated.Angle)
}

func TestSiamMaskRefineFailureKeepsBox(t *testing.T) {

	p := SiamMaskParams()
	stub := newStub(p)
	stub.refineErr = errStub

	trk, err := NewSiamMask(stub, p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	init := NewRect(100, 100, 50, 50)
	require.NoError(t, trk.Init(frame, init, Object{}))

	_, err = trk.Track(frame)
	assert.ErrorIs(t, err, errStub)
	assert.Equal(t, init, trk.Box())
}

func TestNewTrackerInvalid(t *testing.T) {

	p := SiamRPNPPParams()
	p.Stride = 0

	_, err := NewSiamRPNPP(newStub(SiamRPNPPParams()), p)
	assert.ErrorIs(t, err, ErrInvalidParams)

	// SiamRPN++ defaults lack mask settings
	_, err = NewSiamMask(newStub(SiamRPNPPParams()), SiamRPNPPParams())
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewSiamRPNPP(nil, SiamRPNPPParams())
	assert.Error(t, err)
}

func TestReset(t *testing.T) {

	p := SiamRPNPPParams()
	trk, err := NewSiamRPNPP(newStub(p), p)
	require.NoError(t, err)
	defer trk.Close()

	frame := uniformFrame()
	defer frame.Close()

	require.NoError(t, trk.Init(frame, NewRect(100, 100, 50, 50), Object{ID: "abc"}))
	assert.Equal(t, "abc", trk.Object().ID)

	trk.Reset()

	assert.False(t, trk.Ready())
	_, err = trk.Track(frame)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestGoCVTracker(t *testing.T) {

	p := SiamRPNPPParams()
	trk, err := NewSiamRPNPP(newStub(p), p)
	require.NoError(t, err)

	g := NewGoCVTracker(trk, NewObject(0, "car"))
	defer g.Close()

	frame := uniformFrame()
	defer frame.Close()

	require.True(t, g.Init(frame, image.Rect(100, 100, 150, 150)))
	assert.NoError(t, g.Err())

	box, ok := g.Update(frame)
	require.True(t, ok)

	assert.InDelta(t, 100, box.Min.X, 1)
	assert.InDelta(t, 100, box.Min.Y, 1)
	assert.InDelta(t, 50, box.Dx(), 1)

	assert.False(t, g.Init(frame, image.Rect(10, 10, 10, 40)))
	assert.ErrorIs(t, g.Err(), ErrInvalidBox)

	_, ok = g.Update(frame)
	assert.False(t, ok)
	assert.ErrorIs(t, g.Err(), ErrNotInitialized)
}
