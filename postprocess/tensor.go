package postprocess

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when a tensor handed over by the feature
// transform does not have the number of elements the decoder expects
var ErrShapeMismatch = errors.New("tensor shape mismatch")

// Tensor is a flat float32 buffer in NCHW layout with its shape metadata.  It
// is the exchange format between the tracker and the feature transform
type Tensor struct {
	// Data is the row major tensor data
	Data []float32
	// Shape are the tensor dimensions, eg: [1, 10, 25, 25]
	Shape []int
}

// NewTensor returns a zero filled tensor of the given shape
func NewTensor(shape ...int) Tensor {
	return Tensor{
		Data:  make([]float32, numElems(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// Len returns the number of elements held by the tensor
func (t Tensor) Len() int {
	return len(t.Data)
}

// Clone returns a deep copy of the tensor
func (t Tensor) Clone() Tensor {
	return Tensor{
		Data:  append([]float32(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// String returns the tensor shape formatted for logging
func (t Tensor) String() string {
	return fmt.Sprintf("Tensor%v(len=%d)", t.Shape, len(t.Data))
}

// numElems returns the product of the dimensions
func numElems(shape []int) int {

	if len(shape) == 0 {
		return 0
	}

	n := 1

	for _, d := range shape {
		n *= d
	}

	return n
}

// AverageTensors returns the elementwise mean of the given tensors.  SiamRPN++
// produces one classification and one regression output per RPN level which
// are averaged before decoding
func AverageTensors(ts []Tensor) (Tensor, error) {

	if len(ts) == 0 {
		return Tensor{}, fmt.Errorf("no tensors to average: %w", ErrShapeMismatch)
	}

	if len(ts) == 1 {
		return ts[0], nil
	}

	avg := ts[0].Clone()

	for i := 1; i < len(ts); i++ {
		if len(ts[i].Data) != len(avg.Data) {
			return Tensor{}, fmt.Errorf("tensor %d has %d elements, expected %d: %w",
				i, len(ts[i].Data), len(avg.Data), ErrShapeMismatch)
		}

		for j, v := range ts[i].Data {
			avg.Data[j] += v
		}
	}

	n := float32(len(ts))

	for j := range avg.Data {
		avg.Data[j] /= n
	}

	return avg, nil
}
