package siamtrack

import (
	"fmt"
	"io"
)

// Query writes the SDK version and the loaded model's input and output tensor
// attributes to w in human readable form
func (r *Runtime) Query(w io.Writer) error {

	ver, err := r.SDKVersion()

	if err != nil {
		return fmt.Errorf("error querying SDK version: %w", err)
	}

	fmt.Fprintf(w, "Model: %s\n", r.name)
	fmt.Fprintf(w, "  Driver Version: %s, API Version: %s\n", ver.DriverVersion, ver.APIVersion)
	fmt.Fprintf(w, "  Input Number: %d, Output Number: %d\n",
		len(r.inputs), len(r.outputs))

	fmt.Fprintf(w, "  Input tensors:\n")

	for _, attr := range r.inputs {
		fmt.Fprintf(w, "    %s\n", attr.String())
	}

	fmt.Fprintf(w, "  Output tensors:\n")

	for _, attr := range r.outputs {
		fmt.Fprintf(w, "    %s\n", attr.String())
	}

	return nil
}
