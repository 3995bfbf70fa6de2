package tracker

import (
	"errors"
	"fmt"
	"os"

	"github.com/swdee/go-siamtrack/postprocess"
	"gopkg.in/yaml.v3"
)

// ErrInvalidParams is returned when tracker parameters fail validation
var ErrInvalidParams = errors.New("invalid tracker parameters")

// Params defines the fixed configuration of a siamese tracker
type Params struct {
	// ExemplarSize is the template patch side length fed to the network
	ExemplarSize int `yaml:"exemplar_size"`
	// InstanceSize is the search patch side length fed to the network
	InstanceSize int `yaml:"instance_size"`
	// BaseSize is the extra number of score cells produced by the head
	BaseSize int `yaml:"base_size"`
	// ContextAmount is the fraction of the box half perimeter added as context
	// around the target
	ContextAmount float64 `yaml:"context_amount"`
	// Stride of the anchors in search patch pixels
	Stride int `yaml:"stride"`
	// Ratios are the anchor aspect ratios
	Ratios []float64 `yaml:"ratios"`
	// Scales are the anchor scales
	Scales []float64 `yaml:"scales"`
	// PenaltyK controls how strongly scale and aspect changes are penalized
	PenaltyK float64 `yaml:"penalty_k"`
	// WindowInfluence is the weight of the cosine window in the final score
	WindowInfluence float64 `yaml:"window_influence"`
	// LR is the update rate applied to the box size
	LR float64 `yaml:"lr"`
	// SmoothCenter damps the center movement with the same update rate as
	// the size.  When false the center moves fully to the winning candidate
	SmoothCenter bool `yaml:"smooth_center"`
	// MinBoxSize is the smallest box width or height allowed in frame pixels
	MinBoxSize float64 `yaml:"min_box_size"`
	// MaxBoxFraction is the largest box width or height allowed as a fraction
	// of the frame width or height
	MaxBoxFraction float64 `yaml:"max_box_fraction"`

	// mask settings, only used by SiamMask

	// MaskThreshold is the probability above which a mask pixel is foreground
	MaskThreshold float32 `yaml:"mask_threshold"`
	// MinContourArea is the smallest contour area reported as a rotated box
	MinContourArea float64 `yaml:"min_contour_area"`
	// MaskOutputSize is the side length of the refine head output
	MaskOutputSize int `yaml:"mask_output_size"`
}

// SiamRPNPPParams returns the default parameters for the SiamRPN++ tracker
func SiamRPNPPParams() Params {
	return Params{
		ExemplarSize:    127,
		InstanceSize:    255,
		BaseSize:        8,
		ContextAmount:   0.5,
		Stride:          8,
		Ratios:          []float64{0.33, 0.5, 1, 2, 3},
		Scales:          []float64{8},
		PenaltyK:        0.05,
		WindowInfluence: 0.42,
		LR:              0.38,
		MinBoxSize:      10,
		MaxBoxFraction:  1,
	}
}

// SiamMaskParams returns the default parameters for the SiamMask tracker
func SiamMaskParams() Params {
	p := SiamRPNPPParams()
	p.PenaltyK = 0.10
	p.WindowInfluence = 0.41
	p.LR = 0.32
	p.MaskThreshold = 0.25
	p.MinContourArea = 100
	p.MaskOutputSize = 127
	return p
}

// LoadParams reads a YAML file and overlays its values on the given defaults
func LoadParams(path string, defaults Params) (Params, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return Params{}, fmt.Errorf("failed to read params file: %w", err)
	}

	p := defaults

	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("failed to parse params: %w", err)
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}

	return p, nil
}

// Validate checks the parameters are usable
func (p Params) Validate() error {

	switch {
	case p.ExemplarSize <= 0 || p.InstanceSize < p.ExemplarSize:
		return fmt.Errorf("exemplar size %d and instance size %d: %w",
			p.ExemplarSize, p.InstanceSize, ErrInvalidParams)

	case p.Stride <= 0:
		return fmt.Errorf("stride %d: %w", p.Stride, ErrInvalidParams)

	case p.BaseSize < 0:
		return fmt.Errorf("base size %d: %w", p.BaseSize, ErrInvalidParams)

	case p.ContextAmount < 0:
		return fmt.Errorf("context amount %f: %w", p.ContextAmount, ErrInvalidParams)

	case len(p.Ratios) == 0 || len(p.Scales) == 0:
		return fmt.Errorf("anchor ratios and scales required: %w", ErrInvalidParams)

	case p.WindowInfluence < 0 || p.WindowInfluence > 1:
		return fmt.Errorf("window influence %f outside [0, 1]: %w",
			p.WindowInfluence, ErrInvalidParams)

	case p.LR < 0 || p.LR > 1:
		return fmt.Errorf("lr %f outside [0, 1]: %w", p.LR, ErrInvalidParams)

	case p.MinBoxSize <= 0 || p.MaxBoxFraction <= 0:
		return fmt.Errorf("box limits min=%f fraction=%f: %w",
			p.MinBoxSize, p.MaxBoxFraction, ErrInvalidParams)
	}

	if p.anchorParams().ScoreSize() < 2 {
		return fmt.Errorf("score size %d too small: %w",
			p.anchorParams().ScoreSize(), ErrInvalidParams)
	}

	return nil
}

// validateMask checks the mask specific parameters
func (p Params) validateMask() error {

	if p.MaskOutputSize <= 0 {
		return fmt.Errorf("mask output size %d: %w", p.MaskOutputSize, ErrInvalidParams)
	}

	if p.MaskThreshold <= 0 || p.MaskThreshold >= 1 {
		return fmt.Errorf("mask threshold %f outside (0, 1): %w", p.MaskThreshold, ErrInvalidParams)
	}

	if p.MinContourArea < 0 {
		return fmt.Errorf("min contour area %f: %w", p.MinContourArea, ErrInvalidParams)
	}

	return nil
}

// ScoreSize returns the side length of the score map
func (p Params) ScoreSize() int {
	return p.anchorParams().ScoreSize()
}

// anchorParams returns the anchor grid configuration
func (p Params) anchorParams() postprocess.AnchorParams {
	return postprocess.AnchorParams{
		ExemplarSize: p.ExemplarSize,
		InstanceSize: p.InstanceSize,
		BaseSize:     p.BaseSize,
		Stride:       p.Stride,
		Ratios:       p.Ratios,
		Scales:       p.Scales,
	}
}

// maskParams returns the mask projector configuration
func (p Params) maskParams() postprocess.MaskParams {
	return postprocess.MaskParams{
		OutputSize:     p.MaskOutputSize,
		Threshold:      p.MaskThreshold,
		MinContourArea: p.MinContourArea,
		ExemplarSize:   p.ExemplarSize,
		InstanceSize:   p.InstanceSize,
		BaseSize:       p.BaseSize,
		Stride:         p.Stride,
	}
}
