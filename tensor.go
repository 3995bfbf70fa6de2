package siamtrack

/*
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"unsafe"
)

// TensorFormat wraps C.rknn_tensor_format
type TensorFormat int

const (
	TensorNCHW TensorFormat = C.RKNN_TENSOR_NCHW
	TensorNHWC TensorFormat = C.RKNN_TENSOR_NHWC
)

// TensorType wraps C.rknn_tensor_type.  Only the types the siamese models
// are exported with are named
type TensorType int

const (
	TensorFloat32 TensorType = C.RKNN_TENSOR_FLOAT32
	TensorFloat16 TensorType = C.RKNN_TENSOR_FLOAT16
	TensorInt8    TensorType = C.RKNN_TENSOR_INT8
	TensorUint8   TensorType = C.RKNN_TENSOR_UINT8
)

var formatNames = map[TensorFormat]string{
	TensorNCHW: "NCHW",
	TensorNHWC: "NHWC",
}

var typeNames = map[TensorType]string{
	TensorFloat32: "FP32",
	TensorFloat16: "FP16",
	TensorInt8:    "INT8",
	TensorUint8:   "UINT8",
}

// TensorAttr holds the parts of C.rknn_tensor_attr needed to feed and
// decode the backbone, neck and head tensors
type TensorAttr struct {
	Index int
	Name  string
	// Shape is the tensor dimensions, eg: [1, 256, 7, 7]
	Shape []int
	// Elems is the number of elements, the product of Shape
	Elems int
	Fmt   TensorFormat
	Type  TensorType
	// ZP and Scale are the affine quantization parameters of int8 tensors
	ZP    int32
	Scale float32
}

// queryTensors fetches the attributes of n input or output tensors, what
// being C.RKNN_QUERY_INPUT_ATTR or C.RKNN_QUERY_OUTPUT_ATTR
func (r *Runtime) queryTensors(what C.rknn_query_cmd, n int) ([]TensorAttr, error) {

	attrs := make([]TensorAttr, n)

	for i := range attrs {
		var cAttr C.rknn_tensor_attr
		cAttr.index = C.uint32_t(i)

		ret := C.rknn_query(r.ctx, what, unsafe.Pointer(&cAttr),
			C.uint(C.sizeof_rknn_tensor_attr))

		if ret != C.RKNN_SUCC {
			return nil, r.callErr(fmt.Sprintf("rknn_query tensor %d", i), ret)
		}

		shape := make([]int, int(cAttr.n_dims))

		for d := range shape {
			shape[d] = int(cAttr.dims[d])
		}

		attrs[i] = TensorAttr{
			Index: i,
			Name:  C.GoString(&cAttr.name[0]),
			Shape: shape,
			Elems: int(cAttr.n_elems),
			Fmt:   TensorFormat(cAttr.fmt),
			Type:  TensorType(cAttr._type),
			ZP:    int32(cAttr.zp),
			Scale: float32(cAttr.scale),
		}
	}

	return attrs, nil
}

// String returns the TensorAttr's attributes formatted as a string
func (a TensorAttr) String() string {
	return fmt.Sprintf("index=%d, name=%s, dims=%v, n_elems=%d, fmt=%s, "+
		"type=%s, zp=%d, scale=%f",
		a.Index, a.Name, a.Shape, a.Elems, a.Fmt, a.Type, a.ZP, a.Scale)
}

// String returns a readable description of the TensorType
func (t TensorType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE(%d)", int(t))
}

// String returns a readable description of the TensorFormat
func (f TensorFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FMT(%d)", int(f))
}
