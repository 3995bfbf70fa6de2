package siamtrack

import (
	"errors"
	"fmt"
	"io"

	"github.com/swdee/go-siamtrack/postprocess"
	"github.com/swdee/go-siamtrack/tracker"
	"gocv.io/x/gocv"
)

// SiamRPNPPModels are the RKNN model files making up a SiamRPN++ tracker.
// RKNN models have fixed input shapes so the backbone and neck are compiled
// once for the exemplar patch size and once for the search patch size
type SiamRPNPPModels struct {
	// TemplateBackbone takes the exemplar patch as NHWC uint8
	TemplateBackbone string
	// SearchBackbone takes the search patch as NHWC uint8
	SearchBackbone string
	// TemplateNeck and SearchNeck refine the backbone features.  They are
	// optional when the neck is compiled into the backbone models
	TemplateNeck string
	SearchNeck   string
	// Head takes the template features followed by the search features and
	// outputs classification and regression maps alternating per RPN level
	Head string
}

// SiamMaskModels are the RKNN model files making up a SiamMask tracker
type SiamMaskModels struct {
	SiamRPNPPModels
	// MaskHead takes the template and search features and outputs the
	// depthwise correlation features as its last output
	MaskHead string
	// Refine takes the backbone and correlation feature crops at the winning
	// position and outputs the mask logits
	Refine string
}

// rknnStage is a stage of the network with optional separate template and
// search runtimes
type rknnStage struct {
	template *Runtime
	search   *Runtime
}

// pick returns the runtime whose first input has n elements
func (s rknnStage) pick(n int) (*Runtime, error) {

	for _, rt := range []*Runtime{s.template, s.search} {
		if rt.acceptsInput(n) {
			return rt, nil
		}
	}

	return nil, fmt.Errorf("no model accepts an input of %d elements: %w",
		n, postprocess.ErrShapeMismatch)
}

// SiamRPNPP is a SiamRPN++ feature transform running on the RKNN NPU
type SiamRPNPP struct {
	backbone rknnStage
	neck     rknnStage
	head     *Runtime
	// runtimes holds every opened runtime for Close
	runtimes []*Runtime
}

var _ tracker.FeatureTransform = (*SiamRPNPP)(nil)

// NewSiamRPNPP loads the SiamRPN++ models onto the given NPU core
func NewSiamRPNPP(models SiamRPNPPModels, core CoreMask) (*SiamRPNPP, error) {

	s := &SiamRPNPP{}

	if err := s.load(models, core); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// open loads a model and records it for Close.  An empty file returns nil
func (s *SiamRPNPP) open(file string, core CoreMask) (*Runtime, error) {

	if file == "" {
		return nil, nil
	}

	rt, err := NewRuntime(file, core)

	if err != nil {
		return nil, fmt.Errorf("error loading model %s: %w", file, err)
	}

	s.runtimes = append(s.runtimes, rt)

	return rt, nil
}

func (s *SiamRPNPP) load(m SiamRPNPPModels, core CoreMask) error {

	if m.TemplateBackbone == "" || m.SearchBackbone == "" || m.Head == "" {
		return fmt.Errorf("backbone and head models are required")
	}

	if (m.TemplateNeck == "") != (m.SearchNeck == "") {
		return fmt.Errorf("template and search neck models must be given together")
	}

	var err error

	if s.backbone.template, err = s.open(m.TemplateBackbone, core); err != nil {
		return err
	}

	if s.backbone.search, err = s.open(m.SearchBackbone, core); err != nil {
		return err
	}

	if s.neck.template, err = s.open(m.TemplateNeck, core); err != nil {
		return err
	}

	if s.neck.search, err = s.open(m.SearchNeck, core); err != nil {
		return err
	}

	if s.head, err = s.open(m.Head, core); err != nil {
		return err
	}

	return nil
}

// Backbone runs the backbone model matching the patch size
func (s *SiamRPNPP) Backbone(img gocv.Mat) ([]postprocess.Tensor, error) {

	rt, err := s.backbone.pick(img.Rows() * img.Cols() * img.Channels())

	if err != nil {
		return nil, err
	}

	return rt.InferMat(img)
}

// Neck runs the neck model matching the feature size.  The neck consumes the
// last backbone outputs, as many as the model has inputs.  Without neck
// models the features are returned unchanged
func (s *SiamRPNPP) Neck(features []postprocess.Tensor) ([]postprocess.Tensor, error) {

	if s.neck.template == nil {
		return features, nil
	}

	if len(features) == 0 {
		return nil, fmt.Errorf("no features for neck: %w", postprocess.ErrShapeMismatch)
	}

	// the template and search necks take different sized inputs, match on
	// the first tensor the neck consumes
	for _, rt := range []*Runtime{s.neck.template, s.neck.search} {
		if rt == nil {
			continue
		}

		n := rt.NumInputs()

		if n == 0 || n > len(features) {
			continue
		}

		in := features[len(features)-n:]

		if rt.acceptsInput(in[0].Len()) {
			return rt.InferTensors(in)
		}
	}

	return nil, fmt.Errorf("no neck model accepts features %v: %w",
		features, postprocess.ErrShapeMismatch)
}

// Head correlates the template and search features.  Outputs alternate
// classification and regression per RPN level
func (s *SiamRPNPP) Head(template, search []postprocess.Tensor) ([]postprocess.Tensor, []postprocess.Tensor, error) {

	outs, err := s.head.InferTensors(append(append([]postprocess.Tensor(nil), template...), search...))

	if err != nil {
		return nil, nil, err
	}

	if len(outs) == 0 || len(outs)%2 != 0 {
		return nil, nil, fmt.Errorf("head has %d outputs, expected cls and loc pairs: %w",
			len(outs), postprocess.ErrShapeMismatch)
	}

	var cls, loc []postprocess.Tensor

	for i := 0; i < len(outs); i += 2 {
		cls = append(cls, outs[i])
		loc = append(loc, outs[i+1])
	}

	return cls, loc, nil
}

// SetWantFloat sets whether every model has the RKNN runtime convert its
// outputs to float32.  When false fp16 outputs are converted in Go and int8
// outputs are dequantized with their zero point and scale
func (s *SiamRPNPP) SetWantFloat(val bool) {
	for _, rt := range s.runtimes {
		rt.SetWantFloat(val)
	}
}

// Query writes the tensor attributes of every loaded model to w
func (s *SiamRPNPP) Query(w io.Writer) error {

	for _, rt := range s.runtimes {
		if err := rt.Query(w); err != nil {
			return err
		}
	}

	return nil
}

// Close frees all models
func (s *SiamRPNPP) Close() error {

	var errs []error

	for _, rt := range s.runtimes {
		errs = append(errs, rt.Close())
	}

	s.runtimes = nil

	return errors.Join(errs...)
}

// refineCrop describes the window cut from a backbone feature map for the
// refine model at a score map position
type refineCrop struct {
	// pad is the zero padding added around the feature map
	pad int
	// step is the feature map stride relative to the score map
	step int
	// size is the side length of the crop
	size int
}

// refineCrops are the backbone feature windows of the SiamMask refine module
// for the conv1, layer1 and layer2 outputs
var refineCrops = []refineCrop{
	{pad: 16, step: 4, size: 61},
	{pad: 8, step: 2, size: 31},
	{pad: 4, step: 1, size: 15},
}

// SiamMask is a SiamMask feature transform running on the RKNN NPU
type SiamMask struct {
	SiamRPNPP
	maskHead *Runtime
	refine   *Runtime
}

var _ tracker.MaskTransform = (*SiamMask)(nil)

// NewSiamMask loads the SiamMask models onto the given NPU core
func NewSiamMask(models SiamMaskModels, core CoreMask) (*SiamMask, error) {

	s := &SiamMask{}

	if err := s.load(models, core); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *SiamMask) load(m SiamMaskModels, core CoreMask) error {

	if m.MaskHead == "" || m.Refine == "" {
		return fmt.Errorf("mask head and refine models are required")
	}

	if err := s.SiamRPNPP.load(m.SiamRPNPPModels, core); err != nil {
		return err
	}

	var err error

	if s.maskHead, err = s.open(m.MaskHead, core); err != nil {
		return err
	}

	if s.refine, err = s.open(m.Refine, core); err != nil {
		return err
	}

	return nil
}

// MaskHead returns the correlation features of the template and search
// features
func (s *SiamMask) MaskHead(template, search []postprocess.Tensor) (postprocess.Tensor, error) {

	if len(template) == 0 || len(search) == 0 {
		return postprocess.Tensor{}, fmt.Errorf("mask head needs template and search features: %w",
			postprocess.ErrShapeMismatch)
	}

	outs, err := s.maskHead.InferTensors([]postprocess.Tensor{template[0], search[0]})

	if err != nil {
		return postprocess.Tensor{}, err
	}

	if len(outs) == 0 {
		return postprocess.Tensor{}, fmt.Errorf("mask head returned no outputs: %w",
			postprocess.ErrShapeMismatch)
	}

	return outs[len(outs)-1], nil
}

// RefineHead crops the backbone features and correlation features at the
// score map position and runs the refine model returning the mask logits
func (s *SiamMask) RefineHead(backbone []postprocess.Tensor, corr postprocess.Tensor,
	row, col int) (postprocess.Tensor, error) {

	if len(backbone) < len(refineCrops) {
		return postprocess.Tensor{}, fmt.Errorf("refine needs %d backbone features, got %d: %w",
			len(refineCrops), len(backbone), postprocess.ErrShapeMismatch)
	}

	inputs := make([]postprocess.Tensor, 0, len(refineCrops)+1)

	for i, c := range refineCrops {
		crop, err := cropNCHW(backbone[i], c.pad, row*c.step, col*c.step, c.size)

		if err != nil {
			return postprocess.Tensor{}, fmt.Errorf("error cropping backbone feature %d: %w", i, err)
		}

		inputs = append(inputs, crop)
	}

	// correlation feature vector at the position
	vec, err := cropNCHW(corr, 0, row, col, 1)

	if err != nil {
		return postprocess.Tensor{}, fmt.Errorf("error cropping correlation feature: %w", err)
	}

	inputs = append(inputs, vec)

	outs, err := s.refine.InferTensors(inputs)

	if err != nil {
		return postprocess.Tensor{}, err
	}

	if len(outs) == 0 {
		return postprocess.Tensor{}, fmt.Errorf("refine returned no outputs: %w",
			postprocess.ErrShapeMismatch)
	}

	return outs[0], nil
}

// cropNCHW zero pads a [1, C, H, W] tensor by pad on each side then returns
// the size x size window with top left corner y, x in padded coordinates
func cropNCHW(t postprocess.Tensor, pad, y, x, size int) (postprocess.Tensor, error) {

	if len(t.Shape) != 4 || t.Shape[0] != 1 {
		return postprocess.Tensor{}, fmt.Errorf("expected [1, C, H, W] tensor, got %v: %w",
			t.Shape, postprocess.ErrShapeMismatch)
	}

	c, h, w := t.Shape[1], t.Shape[2], t.Shape[3]

	if len(t.Data) != c*h*w {
		return postprocess.Tensor{}, fmt.Errorf("tensor %s data does not match shape: %w",
			t, postprocess.ErrShapeMismatch)
	}

	if y < 0 || x < 0 || y+size > h+2*pad || x+size > w+2*pad {
		return postprocess.Tensor{}, fmt.Errorf("window %d,%d size %d outside %dx%d padded by %d: %w",
			x, y, size, w, h, pad, postprocess.ErrShapeMismatch)
	}

	out := postprocess.NewTensor(1, c, size, size)

	for ch := 0; ch < c; ch++ {
		src := t.Data[ch*h*w : (ch+1)*h*w]
		dst := out.Data[ch*size*size : (ch+1)*size*size]

		for r := 0; r < size; r++ {
			sy := y + r - pad

			if sy < 0 || sy >= h {
				continue
			}

			for cc := 0; cc < size; cc++ {
				sx := x + cc - pad

				if sx < 0 || sx >= w {
					continue
				}

				dst[r*size+cc] = src[sy*w+sx]
			}
		}
	}

	return out, nil
}

// Close frees all models
func (s *SiamMask) Close() error {
	return s.SiamRPNPP.Close()
}
