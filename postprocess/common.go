package postprocess

import (
	"math"
)

// softmax2 returns the softmax of a two class logit pair, computed with the
// max subtracted for numerical stability
func softmax2(bg, fg float64) (float64, float64) {

	m := math.Max(bg, fg)
	eb := math.Exp(bg - m)
	ef := math.Exp(fg - m)
	sum := eb + ef

	return eb / sum, ef / sum
}

// sigmoid computes the logistic function of x
func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}
