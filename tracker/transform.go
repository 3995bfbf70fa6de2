package tracker

import (
	"github.com/swdee/go-siamtrack/postprocess"
	"gocv.io/x/gocv"
)

// FeatureTransform runs the neural network stages of a siamese tracker.  The
// tracker only depends on the shapes of the tensors exchanged, not on how
// they are computed
type FeatureTransform interface {
	// Backbone extracts the feature maps of an image patch.  The patch is a
	// HWC uint8 Mat in BGR order
	Backbone(img gocv.Mat) ([]postprocess.Tensor, error)
	// Neck refines the backbone feature maps
	Neck(features []postprocess.Tensor) ([]postprocess.Tensor, error)
	// Head correlates template and search features returning a classification
	// [1, 2A, S, S] and regression [1, 4A, S, S] tensor for each RPN level
	Head(template, search []postprocess.Tensor) (cls, loc []postprocess.Tensor, err error)
}

// MaskTransform extends FeatureTransform with the SiamMask segmentation stages
type MaskTransform interface {
	FeatureTransform
	// MaskHead returns the depthwise correlation features of the template
	// and search features
	MaskHead(template, search []postprocess.Tensor) (postprocess.Tensor, error)
	// RefineHead returns the mask logits of side MaskOutputSize for the score
	// map position row, col.  backbone are the search patch backbone features
	RefineHead(backbone []postprocess.Tensor, corr postprocess.Tensor, row, col int) (postprocess.Tensor, error)
}
