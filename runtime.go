package siamtrack

/*
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"
)

// CoreMask wraps C.rknn_core_mask
type CoreMask int

// rknn_core_mask values used to target which cores on the NPU the model is run
// on.  Auto picks an idle core, the others pin to a specific core or set of
// cores.  NPUSkipSetCore is for platforms without core selection
const (
	NPUCoreAuto    CoreMask = C.RKNN_NPU_CORE_AUTO
	NPUCore0       CoreMask = C.RKNN_NPU_CORE_0
	NPUCore1       CoreMask = C.RKNN_NPU_CORE_1
	NPUCore2       CoreMask = C.RKNN_NPU_CORE_2
	NPUCore01      CoreMask = C.RKNN_NPU_CORE_0_1
	NPUCore012     CoreMask = C.RKNN_NPU_CORE_0_1_2
	NPUSkipSetCore CoreMask = 9999
)

// ErrorCode is a failure code returned by the RKNN C API.  It implements error
// so callers can match it with errors.As
type ErrorCode int

// errorText describes the codes a siamese pipeline is likely to hit
var errorText = map[ErrorCode]string{
	C.RKNN_ERR_FAIL:                          "execution failed",
	C.RKNN_ERR_TIMEOUT:                       "execution timed out",
	C.RKNN_ERR_DEVICE_UNAVAILABLE:            "device is unavailable",
	C.RKNN_ERR_MALLOC_FAIL:                   "C memory allocation failed",
	C.RKNN_ERR_PARAM_INVALID:                 "parameter is invalid",
	C.RKNN_ERR_MODEL_INVALID:                 "model file is invalid",
	C.RKNN_ERR_CTX_INVALID:                   "context is invalid",
	C.RKNN_ERR_INPUT_INVALID:                 "input is invalid, check the feature shapes match the model",
	C.RKNN_ERR_OUTPUT_INVALID:                "output is invalid",
	C.RKNN_ERR_DEVICE_UNMATCH:                "device mismatch, please update rknn sdk and npu driver/firmware",
	C.RKNN_ERR_TARGET_PLATFORM_UNMATCH:       "model was compiled for another platform",
	C.RKNN_ERR_INCOMPATILE_PRE_COMPILE_MODEL: "pre_compile model is not compatible with the driver",
}

// Error returns a readable description of the code
func (e ErrorCode) Error() string {

	if text, ok := errorText[e]; ok {
		return fmt.Sprintf("rknn error %d: %s", int(e), text)
	}

	return fmt.Sprintf("rknn error %d", int(e))
}

// Runtime is a loaded RKNN model bound to an NPU core.  A siamese tracker
// runs several models per frame (backbone, neck and heads), each of which has
// its own Runtime
type Runtime struct {
	ctx C.rknn_context
	// name of the model file, used in error messages
	name string
	// inputs and outputs are the tensor attributes queried at load
	inputs  []TensorAttr
	outputs []TensorAttr
	// wantFloat indicates if the RKNN runtime converts outputs to float32,
	// when false fp16 and int8 outputs are converted in Go.  Default is true
	wantFloat bool
}

// NewRuntime loads the RKNN compiled model file, pins it to the NPU core and
// caches its tensor attributes
func NewRuntime(modelFile string, core CoreMask) (*Runtime, error) {

	info, err := os.Stat(modelFile)

	if err != nil {
		return nil, fmt.Errorf("model file does not exist at %s, error: %w",
			modelFile, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("model file %s is a directory", modelFile)
	}

	r := &Runtime{
		name:      filepath.Base(modelFile),
		wantFloat: true,
	}

	cModelFile := C.CString(modelFile)
	defer C.free(unsafe.Pointer(cModelFile))

	if ret := C.rknn_init(&r.ctx, unsafe.Pointer(cModelFile), 0, 0, nil); ret != C.RKNN_SUCC {
		return nil, r.callErr("rknn_init", ret)
	}

	// core selection is only supported on multi core NPU's like the RK3588
	if core != NPUSkipSetCore {
		if ret := C.rknn_set_core_mask(r.ctx, C.rknn_core_mask(core)); ret != C.RKNN_SUCC {
			r.Close()
			return nil, r.callErr("rknn_set_core_mask", ret)
		}
	}

	if err := r.queryAttrs(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

// queryAttrs caches the number of inputs and outputs and their attributes
func (r *Runtime) queryAttrs() error {

	var ioNum C.rknn_input_output_num

	ret := C.rknn_query(r.ctx, C.RKNN_QUERY_IN_OUT_NUM, unsafe.Pointer(&ioNum),
		C.uint(C.sizeof_rknn_input_output_num))

	if ret != C.RKNN_SUCC {
		return r.callErr("rknn_query IN_OUT_NUM", ret)
	}

	var err error

	if r.inputs, err = r.queryTensors(C.RKNN_QUERY_INPUT_ATTR, int(ioNum.n_input)); err != nil {
		return err
	}

	r.outputs, err = r.queryTensors(C.RKNN_QUERY_OUTPUT_ATTR, int(ioNum.n_output))

	return err
}

// callErr wraps a failed C API call with the model name
func (r *Runtime) callErr(call string, ret C.int) error {
	return fmt.Errorf("C.%s failed for model %s: %w", call, r.name, ErrorCode(ret))
}

// Close unloads the model and releases the C context
func (r *Runtime) Close() error {

	if ret := C.rknn_destroy(r.ctx); ret != C.RKNN_SUCC {
		return r.callErr("rknn_destroy", ret)
	}

	return nil
}

// SetWantFloat defines if the RKNN runtime converts output tensors to float32.
// When disabled fp16 outputs are converted by Outputs.Tensors instead
func (r *Runtime) SetWantFloat(val bool) {
	r.wantFloat = val
}

// Name returns the base filename of the loaded model
func (r *Runtime) Name() string {
	return r.name
}

// NumInputs returns the number of input tensors of the model
func (r *Runtime) NumInputs() int {
	return len(r.inputs)
}

// acceptsInput returns true if the model's first input has n elements.  The
// siamese models are compiled per patch size so this tells the exemplar and
// search variants apart
func (r *Runtime) acceptsInput(n int) bool {
	return r != nil && len(r.inputs) > 0 && r.inputs[0].Elems == n
}

// SDKVersion represents the C.rknn_sdk_version struct
type SDKVersion struct {
	DriverVersion string
	APIVersion    string
}

// SDKVersion returns the RKNN API and Driver versions
func (r *Runtime) SDKVersion() (SDKVersion, error) {

	var ver C.rknn_sdk_version

	ret := C.rknn_query(r.ctx, C.RKNN_QUERY_SDK_VERSION, unsafe.Pointer(&ver),
		C.uint(C.sizeof_rknn_sdk_version))

	if ret != C.RKNN_SUCC {
		return SDKVersion{}, r.callErr("rknn_query SDK_VERSION", ret)
	}

	return SDKVersion{
		DriverVersion: C.GoString(&ver.drv_version[0]),
		APIVersion:    C.GoString(&ver.api_version[0]),
	}, nil
}

// InputAttrs returns the loaded model's input tensor attributes
func (r *Runtime) InputAttrs() []TensorAttr {
	return r.inputs
}

// OutputAttrs returns the loaded model's output tensor attributes
func (r *Runtime) OutputAttrs() []TensorAttr {
	return r.outputs
}
