package tracker

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/swdee/go-siamtrack/postprocess"
	"github.com/swdee/go-siamtrack/preprocess"
	"gocv.io/x/gocv"
)

var (
	// ErrNotInitialized is returned when Track is called before Init
	ErrNotInitialized = errors.New("tracker not initialized")
	// ErrInvalidBox is returned when Init is given a box without a positive
	// width and height
	ErrInvalidBox = errors.New("invalid bounding box")
)

// Result is the outcome of tracking a single frame
type Result struct {
	// Box is the updated bounding box in frame coordinates
	Box Rect
	// Score is the foreground probability of the winning candidate
	Score float32
	// Rotated is the rotated bounding rectangle.  For SiamRPN++ and for
	// SiamMask frames without a usable contour this is Box with zero rotation
	Rotated gocv.RotatedRect
	// Polygon are the corners of Rotated clipped to the frame
	Polygon []image.Point
	// Mask is the binary frame sized mask, SiamMask only
	Mask gocv.Mat
	// Contours are the external contours of Mask, SiamMask only
	Contours gocv.PointsVector
	// Object is the object being tracked
	Object Object
	// hasMask indicates Mask and Contours hold gocv memory
	hasMask bool
}

// HasMask returns true if the result carries a segmentation mask
func (r *Result) HasMask() bool {
	return r.hasMask
}

// Close frees the gocv memory held by the result
func (r *Result) Close() error {

	if !r.hasMask {
		return nil
	}

	r.hasMask = false
	r.Contours.Close()

	return r.Mask.Close()
}

// Tracker is a single object siamese tracking session.  It owns the tracked
// box, the template features and the anchor grid; it is not safe for
// concurrent use
type Tracker struct {
	params    Params
	ft        FeatureTransform
	mt        MaskTransform
	grid      *postprocess.AnchorGrid
	selector  *Selector
	projector *postprocess.MaskProjector
	sampler   *preprocess.Sampler
	// template are the neck features of the exemplar patch
	template []postprocess.Tensor
	// avg is the channel average of the first frame used for patch padding
	avg    color.RGBA
	box    Rect
	obj    Object
	ready  bool
	frames int
}

// NewSiamRPNPP returns a SiamRPN++ tracker using the given feature transform
func NewSiamRPNPP(ft FeatureTransform, p Params) (*Tracker, error) {

	if ft == nil {
		return nil, fmt.Errorf("feature transform required")
	}

	return newTracker(ft, nil, p)
}

// NewSiamMask returns a SiamMask tracker using the given mask transform
func NewSiamMask(mt MaskTransform, p Params) (*Tracker, error) {

	if mt == nil {
		return nil, fmt.Errorf("mask transform required")
	}

	if err := p.validateMask(); err != nil {
		return nil, err
	}

	return newTracker(mt, mt, p)
}

func newTracker(ft FeatureTransform, mt MaskTransform, p Params) (*Tracker, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	grid, err := postprocess.NewAnchorGrid(p.anchorParams())

	if err != nil {
		return nil, fmt.Errorf("error creating anchor grid: %w", err)
	}

	t := &Tracker{
		params:   p,
		ft:       ft,
		mt:       mt,
		grid:     grid,
		selector: NewSelector(grid, p),
		sampler:  preprocess.NewSampler(),
	}

	if mt != nil {
		t.projector = postprocess.NewMaskProjector(p.maskParams())
	}

	return t, nil
}

// Close frees memory allocated by the tracker
func (t *Tracker) Close() error {
	return t.sampler.Close()
}

// Init starts tracking the object inside box on the given frame.  The
// template features are extracted from the exemplar patch around the box
func (t *Tracker) Init(frame gocv.Mat, box Rect, obj Object) error {

	t.ready = false

	if !box.Valid() {
		return fmt.Errorf("box %+v: %w", box, ErrInvalidBox)
	}

	if frame.Empty() {
		return fmt.Errorf("empty frame: %w", preprocess.ErrInvalidSize)
	}

	avg := preprocess.ChannelAverage(frame)

	cx, cy := box.Center()
	sZ := preprocess.CalcSZ(float64(box.Width), float64(box.Height), t.params.ContextAmount)

	patch, err := t.sampler.Subwindow(frame, cx, cy, t.params.ExemplarSize, int(sZ), avg)

	if err != nil {
		return fmt.Errorf("error sampling exemplar: %w", err)
	}

	defer patch.Close()

	backbone, err := t.ft.Backbone(patch.Mat)

	if err != nil {
		return fmt.Errorf("exemplar backbone failed: %w", err)
	}

	template, err := t.ft.Neck(backbone)

	if err != nil {
		return fmt.Errorf("exemplar neck failed: %w", err)
	}

	t.template = template
	t.avg = avg
	t.box = box
	t.obj = obj.withID()
	t.frames = 0
	t.ready = true

	return nil
}

// Track locates the object in the next frame.  On error the tracked box is
// left unchanged so tracking may continue with the following frame
func (t *Tracker) Track(frame gocv.Mat) (*Result, error) {

	if !t.ready {
		return nil, ErrNotInitialized
	}

	if frame.Empty() {
		return nil, fmt.Errorf("empty frame: %w", preprocess.ErrInvalidSize)
	}

	frameW, frameH := frame.Cols(), frame.Rows()

	cx, cy := t.box.Center()
	sZ := preprocess.CalcSZ(float64(t.box.Width), float64(t.box.Height), t.params.ContextAmount)
	scaleZ := float64(t.params.ExemplarSize) / sZ
	sX := math.Round(sZ * float64(t.params.InstanceSize) / float64(t.params.ExemplarSize))

	patch, err := t.sampler.Subwindow(frame, cx, cy, t.params.InstanceSize, int(sX), t.avg)

	if err != nil {
		return nil, fmt.Errorf("error sampling search patch: %w", err)
	}

	defer patch.Close()

	backbone, err := t.ft.Backbone(patch.Mat)

	if err != nil {
		return nil, fmt.Errorf("search backbone failed: %w", err)
	}

	search, err := t.ft.Neck(backbone)

	if err != nil {
		return nil, fmt.Errorf("search neck failed: %w", err)
	}

	cls, loc, err := t.ft.Head(t.template, search)

	if err != nil {
		return nil, fmt.Errorf("rpn head failed: %w", err)
	}

	sel, err := t.decode(cls, loc, scaleZ, frameW, frameH)

	if err != nil {
		return nil, err
	}

	res := &Result{
		Box:    sel.Box,
		Score:  float32(sel.Score),
		Object: t.obj,
	}

	if t.mt != nil {
		// the mask is relative to the search patch, which was cut around
		// the box before this frame's update
		crop := postprocess.CropGeometry{
			X:    cx - sX/2,
			Y:    cy - sX/2,
			Size: sX,
		}

		if err := t.segment(res, backbone, search, sel, crop, frameW, frameH); err != nil {
			return nil, err
		}

	} else {
		res.Rotated = postprocess.RectToRotatedRect(sel.Box.Image())
		res.Polygon = postprocess.ClipPolygon(res.Rotated.Points, frameW, frameH)
	}

	// commit only once every stage has succeeded
	t.box = sel.Box
	t.frames++

	return res, nil
}

// decode converts the head outputs into the winning candidate
func (t *Tracker) decode(cls, loc []postprocess.Tensor, scaleZ float64,
	frameW, frameH int) (Selection, error) {

	clsAvg, err := postprocess.AverageTensors(cls)

	if err != nil {
		return Selection{}, fmt.Errorf("error averaging classification outputs: %w", err)
	}

	locAvg, err := postprocess.AverageTensors(loc)

	if err != nil {
		return Selection{}, fmt.Errorf("error averaging regression outputs: %w", err)
	}

	score, err := postprocess.ConvertScore(clsAvg, t.grid.Len())

	if err != nil {
		return Selection{}, err
	}

	boxes, err := postprocess.ConvertBBox(locAvg, t.grid)

	if err != nil {
		return Selection{}, err
	}

	return t.selector.Select(score, boxes, t.box, scaleZ, frameW, frameH)
}

// segment runs the mask stages for the winning candidate and projects the
// mask into the frame
func (t *Tracker) segment(res *Result, backbone, search []postprocess.Tensor,
	sel Selection, crop postprocess.CropGeometry, frameW, frameH int) error {

	corr, err := t.mt.MaskHead(t.template, search)

	if err != nil {
		return fmt.Errorf("mask head failed: %w", err)
	}

	logits, err := t.mt.RefineHead(backbone, corr, sel.Row, sel.Col)

	if err != nil {
		return fmt.Errorf("refine head failed: %w", err)
	}

	mask, err := t.projector.Project(logits, crop, sel.Row, sel.Col,
		frameW, frameH, sel.Box.Image())

	if err != nil {
		return fmt.Errorf("error projecting mask: %w", err)
	}

	res.Mask = mask.Mask
	res.Contours = mask.Contours
	res.Rotated = mask.Rotated
	res.Polygon = mask.Polygon
	res.hasMask = true

	return nil
}

// Box returns the current tracked box
func (t *Tracker) Box() Rect {
	return t.box
}

// Ready returns true once Init has succeeded
func (t *Tracker) Ready() bool {
	return t.ready
}

// Object returns the object being tracked
func (t *Tracker) Object() Object {
	return t.obj
}

// Params returns the tracker parameters
func (t *Tracker) Params() Params {
	return t.params
}

// Frames returns the number of frames tracked since Init
func (t *Tracker) Frames() int {
	return t.frames
}

// IsMask returns true for a SiamMask tracker
func (t *Tracker) IsMask() bool {
	return t.mt != nil
}

// Reset discards the template and tracked box, Init must be called again
// before tracking
func (t *Tracker) Reset() {
	t.ready = false
	t.template = nil
	t.box = Rect{}
	t.obj = Object{}
	t.frames = 0
}
