package postprocess

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// MaskParams defines the parameters used to project the SiamMask refine head
// output back into the video frame
type MaskParams struct {
	// OutputSize is the side length of the refine head mask
	OutputSize int
	// Threshold is the probability above which a mask pixel is foreground
	Threshold float32
	// MinContourArea is the contour area in frame pixels required to report
	// the contour's rotated rectangle instead of the tracked box
	MinContourArea float64
	// ExemplarSize, InstanceSize, BaseSize and Stride are the tracker geometry
	// the refine head position is expressed in
	ExemplarSize int
	InstanceSize int
	BaseSize     int
	Stride       int
}

// CropGeometry describes the square search crop in frame coordinates
type CropGeometry struct {
	// X and Y are the top left corner of the crop
	X, Y float64
	// Size is the side length of the crop in frame pixels (s_x)
	Size float64
}

// MaskResult is the frame space mask and the shape extracted from it
type MaskResult struct {
	// Mask is the binary CV_8U frame sized mask with foreground pixels set to 255
	Mask gocv.Mat
	// Contours are the external contours found in Mask
	Contours gocv.PointsVector
	// Rotated is the minimum area rectangle of the largest contour, or the
	// fallback box with zero rotation
	Rotated gocv.RotatedRect
	// Polygon is Rotated's corners clipped to the frame
	Polygon []image.Point
	// Area is the area of the largest contour, zero when none was found
	Area float64
	// Fallback is true when Rotated was derived from the fallback box
	Fallback bool
}

// Close frees the gocv memory held by the result
func (r *MaskResult) Close() error {
	r.Contours.Close()
	return r.Mask.Close()
}

// MaskProjector maps the low resolution mask of the winning anchor back into
// frame pixel coordinates
type MaskProjector struct {
	Params MaskParams
}

// NewMaskProjector returns a mask projector for the given parameters
func NewMaskProjector(p MaskParams) *MaskProjector {
	return &MaskProjector{
		Params: p,
	}
}

// Affine returns the 2x3 transform mapping mask pixel coordinates to frame
// pixel coordinates for the anchor at the given score map row and column
func (m *MaskProjector) Affine(crop CropGeometry, row, col, frameW, frameH int) *mat.Dense {

	p := m.Params

	// sub box is the exemplar sized region of the search crop the refine
	// head mask covers
	s := crop.Size / float64(p.InstanceSize)
	half := p.BaseSize / 2
	subX := crop.X + float64((col-half)*p.Stride)*s
	subY := crop.Y + float64((row-half)*p.Stride)*s
	subSize := s * float64(p.ExemplarSize)

	s = float64(p.OutputSize) / subSize
	backX := -subX * s
	backY := -subY * s

	a := float64(frameW-1) / (float64(frameW) * s)
	b := float64(frameH-1) / (float64(frameH) * s)
	c := -a * backX
	d := -b * backY

	return mat.NewDense(2, 3, []float64{
		a, 0, c,
		0, b, d,
	})
}

// Project warps the mask logits into a frame sized binary mask, extracts the
// external contours and returns the rotated rectangle of the largest one.
// When no contour is larger than MinContourArea the fallback rectangle is
// returned with zero rotation
func (m *MaskProjector) Project(logits Tensor, crop CropGeometry, row, col,
	frameW, frameH int, fallback image.Rectangle) (MaskResult, error) {

	out := m.Params.OutputSize

	if len(logits.Data) != out*out {
		return MaskResult{}, fmt.Errorf("mask output has %d elements, expected %d: %w",
			len(logits.Data), out*out, ErrShapeMismatch)
	}

	lowRes := gocv.NewMatWithSize(out, out, gocv.MatTypeCV32F)
	defer lowRes.Close()

	data, err := lowRes.DataPtrFloat32()

	if err != nil {
		return MaskResult{}, fmt.Errorf("error getting data pointer for mask: %w", err)
	}

	for i, v := range logits.Data {
		data[i] = sigmoid(v)
	}

	affine := m.Affine(crop, row, col, frameW, frameH)

	mapping := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV32F)
	defer mapping.Close()

	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			mapping.SetFloatAt(r, c, float32(affine.At(r, c)))
		}
	}

	warped := gocv.NewMat()
	defer warped.Close()

	gocv.WarpAffineWithParams(lowRes, &warped, mapping, image.Pt(frameW, frameH),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})

	return m.extract(warped, frameW, frameH, fallback)
}

// extract thresholds the frame space probability map and finds the shape of
// the largest contour
func (m *MaskProjector) extract(probs gocv.Mat, frameW, frameH int,
	fallback image.Rectangle) (MaskResult, error) {

	binF32 := gocv.NewMat()
	defer binF32.Close()

	gocv.Threshold(probs, &binF32, m.Params.Threshold, 255, gocv.ThresholdBinary)

	res := MaskResult{
		Mask: gocv.NewMat(),
	}

	binF32.ConvertTo(&res.Mask, gocv.MatTypeCV8U)

	res.Contours = gocv.FindContours(res.Mask, gocv.RetrievalExternal, gocv.ChainApproxNone)

	largest := -1

	for i := 0; i < res.Contours.Size(); i++ {
		area := gocv.ContourArea(res.Contours.At(i))

		if largest == -1 || area > res.Area {
			largest = i
			res.Area = area
		}
	}

	if largest >= 0 && res.Area > m.Params.MinContourArea {
		res.Rotated = gocv.MinAreaRect(res.Contours.At(largest))
	} else {
		res.Rotated = RectToRotatedRect(fallback)
		res.Fallback = true
	}

	res.Polygon = ClipPolygon(res.Rotated.Points, frameW, frameH)

	return res, nil
}

// RectToRotatedRect converts an axis aligned rectangle into a rotated rectangle
// with zero rotation.  Points are ordered bottom left, top left, top right,
// bottom right
func RectToRotatedRect(r image.Rectangle) gocv.RotatedRect {
	return gocv.RotatedRect{
		Points: []image.Point{
			image.Pt(r.Min.X, r.Max.Y),
			image.Pt(r.Min.X, r.Min.Y),
			image.Pt(r.Max.X, r.Min.Y),
			image.Pt(r.Max.X, r.Max.Y),
		},
		BoundingRect: r,
		Center:       image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2),
		Width:        r.Dx(),
		Height:       r.Dy(),
		Angle:        0,
	}
}
