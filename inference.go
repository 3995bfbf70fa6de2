package siamtrack

/*
#include "rknn_api.h"
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/swdee/go-siamtrack/postprocess"
	"gocv.io/x/gocv"
)

// Input represents the C.rknn_input struct and defines the Input used for
// inference
type Input struct {
	// Index is the input index
	Index uint32
	// Buf is the input data
	Buf unsafe.Pointer
	// Size is the number of bytes of Buf
	Size uint32
	// PassThrough passes Buf directly to the input node of the model without
	// any conversion when true.  When false Buf is converted according to Type
	// and Fmt
	PassThrough bool
	// Type is the data type of Buf
	Type TensorType
	// Fmt is the data layout of Buf
	Fmt TensorFormat
}

// Inference runs the model on image inputs.  Each Mat is passed as NHWC uint8
// data, which is the layout of a gocv image
func (r *Runtime) Inference(mats []gocv.Mat) (*Outputs, error) {

	if len(mats) != len(r.inputs) {
		return nil, fmt.Errorf("model %s expects %d inputs, got %d",
			r.name, len(r.inputs), len(mats))
	}

	inputs := make([]Input, len(mats))

	for idx, mat := range mats {

		// make mat continuous
		if !mat.IsContinuous() {
			mat = mat.Clone()
			defer mat.Close()
		}

		data, err := mat.DataPtrUint8()

		if err != nil {
			return nil, fmt.Errorf("error getting data pointer to Mat: %w", err)
		}

		inputs[idx] = Input{
			Index:       uint32(idx),
			Type:        TensorUint8,
			Size:        uint32(len(data)),
			Fmt:         TensorNHWC,
			Buf:         unsafe.Pointer(&data[0]),
			PassThrough: false,
		}
	}

	return r.run(inputs)
}

// InferenceTensors runs the model on float32 NCHW tensor inputs, such as the
// feature maps produced by another model
func (r *Runtime) InferenceTensors(ts []postprocess.Tensor) (*Outputs, error) {

	if len(ts) != len(r.inputs) {
		return nil, fmt.Errorf("model %s expects %d inputs, got %d",
			r.name, len(r.inputs), len(ts))
	}

	inputs := make([]Input, len(ts))

	for idx, t := range ts {

		want := r.inputs[idx].Elems

		if len(t.Data) != want {
			return nil, fmt.Errorf("model %s input %d expects %d elements, got %s: %w",
				r.name, idx, want, t, postprocess.ErrShapeMismatch)
		}

		// the C input struct may not reference Go memory, so copy the
		// tensor into C memory for the duration of the call
		size := C.size_t(len(t.Data) * 4)
		buf := C.malloc(size)
		defer C.free(buf)

		C.memcpy(buf, unsafe.Pointer(&t.Data[0]), size)

		inputs[idx] = Input{
			Index:       uint32(idx),
			Type:        TensorFloat32,
			Size:        uint32(size),
			Fmt:         TensorNCHW,
			Buf:         buf,
			PassThrough: false,
		}
	}

	return r.run(inputs)
}

// run sets the inputs, runs the model and fetches the outputs
func (r *Runtime) run(inputs []Input) (*Outputs, error) {

	err := r.SetInputs(inputs)

	if err != nil {
		return nil, fmt.Errorf("error setting inputs: %w", err)
	}

	err = r.RunModel()

	if err != nil {
		return nil, fmt.Errorf("error running model: %w", err)
	}

	return r.GetOutputs(uint32(len(r.outputs)), r.wantFloat)
}

// SetInputs wraps C.rknn_inputs_set
func (r *Runtime) SetInputs(inputs []Input) error {

	nInputs := C.uint32_t(len(inputs))
	// C array of inputs allocated in C memory as each input holds a pointer
	cInputs := (*[1 << 20]C.rknn_input)(C.calloc(C.size_t(len(inputs)),
		C.size_t(unsafe.Sizeof(C.rknn_input{}))))[:len(inputs):len(inputs)]
	defer C.free(unsafe.Pointer(&cInputs[0]))

	for i, input := range inputs {
		cInputs[i].index = C.uint32_t(input.Index)
		cInputs[i].buf = input.Buf
		cInputs[i].size = C.uint32_t(input.Size)
		cInputs[i].pass_through = C.uint8_t(0)
		if input.PassThrough {
			cInputs[i].pass_through = C.uint8_t(1)
		}
		cInputs[i]._type = C.rknn_tensor_type(input.Type)
		cInputs[i].fmt = C.rknn_tensor_format(input.Fmt)
	}

	ret := C.rknn_inputs_set(r.ctx, nInputs, &cInputs[0])

	if ret != 0 {
		return r.callErr("rknn_inputs_set", ret)
	}

	return nil
}

// RunModel wraps C.rknn_run
func (r *Runtime) RunModel() error {

	ret := C.rknn_run(r.ctx, nil)

	if ret < 0 {
		return r.callErr("rknn_run", ret)
	}

	return nil
}

// Output wraps C.rknn_output
type Output struct {
	WantFloat  uint8  // want transfer output data to float
	IsPrealloc uint8  // whether buf is pre-allocated
	Index      uint32 // the output index
	// BufFloat is the output as float32.  When the RKNN runtime converted the
	// output this is a slice header pointing to C memory
	BufFloat []float32
	// BufInt is the quantized output, a slice header pointing to C memory
	BufInt []int8
	Size   uint32 // the size of output buf
}

// Outputs is a struct containing Go and C output data
type Outputs struct {
	Output   []Output
	cOutputs []C.rknn_output
	// freed is a flag to indicate if the cOutputs have been released from
	// memory or not
	freed bool
	// mutex to lock access to freed variable
	sync.Mutex
	// rknn runtime instance
	rt *Runtime
}

// GetOutputs returns the Output results
func (r *Runtime) GetOutputs(nOutputs uint32, wantFloat bool) (*Outputs, error) {

	outputs := &Outputs{
		Output:   make([]Output, nOutputs),
		cOutputs: make([]C.rknn_output, nOutputs),
		rt:       r,
	}

	// set want float for all outputs
	useWantFloat := uint8(1)

	if !wantFloat {
		useWantFloat = 0
	}

	for idx := range outputs.cOutputs {
		outputs.cOutputs[idx].index = C.uint32_t(idx)
		outputs.cOutputs[idx].want_float = C.uint8_t(useWantFloat)
	}

	ret := C.rknn_outputs_get(r.ctx, C.uint32_t(nOutputs),
		(*C.rknn_output)(unsafe.Pointer(&outputs.cOutputs[0])), nil)

	if ret < 0 {
		return nil, r.callErr("rknn_outputs_get", ret)
	}

	// convert C.rknn_output array back to Go Output array
	for i, cOutput := range outputs.cOutputs {
		outputs.Output[i] = Output{
			WantFloat:  uint8(cOutput.want_float),
			IsPrealloc: uint8(cOutput.is_prealloc),
			Index:      uint32(cOutput.index),
			Size:       uint32(cOutput.size),
		}

		switch {
		case outputs.Output[i].WantFloat == 1:
			outputs.Output[i].BufFloat = (*[1 << 30]float32)(cOutput.buf)[:cOutput.size/4]

		case r.outputs[i].Type == TensorFloat16:
			f16 := (*[1 << 30]uint16)(cOutput.buf)[:cOutput.size/2]
			outputs.Output[i].BufFloat = float16ToFloat32(f16)

		case r.outputs[i].Type == TensorFloat32:
			outputs.Output[i].BufFloat = (*[1 << 30]float32)(cOutput.buf)[:cOutput.size/4]

		default:
			outputs.Output[i].BufInt = (*[1 << 30]int8)(cOutput.buf)[:cOutput.size]
		}
	}

	return outputs, nil
}

// Tensors copies the outputs into Go owned tensors shaped by the model's
// output attributes.  Quantized int8 outputs are dequantized with the output
// zero point and scale
func (o *Outputs) Tensors() []postprocess.Tensor {

	ts := make([]postprocess.Tensor, len(o.Output))

	for i, out := range o.Output {
		attr := o.rt.outputs[i]
		ts[i].Shape = append([]int(nil), attr.Shape...)

		if out.BufFloat != nil {
			ts[i].Data = append([]float32(nil), out.BufFloat...)
			continue
		}

		ts[i].Data = make([]float32, len(out.BufInt))

		for j, q := range out.BufInt {
			ts[i].Data[j] = (float32(q) - float32(attr.ZP)) * attr.Scale
		}
	}

	return ts
}

// Free C memory buffer holding RKNN inference outputs
func (o *Outputs) Free() error {
	o.Lock()
	defer o.Unlock()

	if o.freed {
		// C memory already released
		return nil
	}

	o.freed = true
	return o.rt.releaseOutputs(o.cOutputs)
}

// releaseOutputs releases the memory allocated for the outputs by the RKNN
// toolkit directly using C rknn_output structs
func (r *Runtime) releaseOutputs(cOutputs []C.rknn_output) error {

	outputsPtr := (*C.rknn_output)(unsafe.Pointer(&cOutputs[0]))

	ret := C.rknn_outputs_release(r.ctx, C.uint32_t(len(cOutputs)), outputsPtr)

	if ret != 0 {
		return r.callErr("rknn_outputs_release", ret)
	}

	return nil
}

// InferTensors runs the model on tensor inputs and returns the outputs copied
// into Go memory, releasing the C output buffers
func (r *Runtime) InferTensors(ts []postprocess.Tensor) ([]postprocess.Tensor, error) {

	outputs, err := r.InferenceTensors(ts)

	if err != nil {
		return nil, err
	}

	defer outputs.Free()

	return outputs.Tensors(), nil
}

// InferMat runs the model on a single image input and returns the outputs
// copied into Go memory, releasing the C output buffers
func (r *Runtime) InferMat(img gocv.Mat) ([]postprocess.Tensor, error) {

	outputs, err := r.Inference([]gocv.Mat{img})

	if err != nil {
		return nil, err
	}

	defer outputs.Free()

	return outputs.Tensors(), nil
}
