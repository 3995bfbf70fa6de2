package siamtrack

import (
	"fmt"
	"strings"
	"syscall"
	"unsafe"
)

// CoreType specifies the CPU core type
type CoreType int

const (
	FastCores CoreType = 0
	SlowCores CoreType = 1
	AllCores  CoreType = 2
)

// Platform describes the CPU and NPU layout of a Rockchip SoC
type Platform struct {
	// Name of the SoC, eg: rk3588
	Name string
	// NPUCores are the NPU cores models can be pinned to.  Pool hands these
	// out round robin
	NPUCores []CoreMask
	// cpu affinity masks per core type
	cpus map[CoreType]uintptr
}

// platforms are the supported Rockchip SoC's keyed by name
var platforms = map[string]Platform{
	"rk3588": {
		Name:     "rk3588",
		NPUCores: []CoreMask{NPUCore0, NPUCore1, NPUCore2},
		cpus: map[CoreType]uintptr{
			FastCores: 0b11110000, // cortex A76 cores 4-7
			SlowCores: 0b00001111, // cortex A55 cores 0-3
			AllCores:  0b11111111,
		},
	},
	"rk3582": {
		Name:     "rk3582",
		NPUCores: []CoreMask{NPUCore0, NPUCore1, NPUCore2},
		cpus: map[CoreType]uintptr{
			FastCores: 0b00110000, // cortex A76 cores 4-5
			SlowCores: 0b00001111, // cortex A55 cores 0-3
			AllCores:  0b00111111,
		},
	},
	"rk3576": {
		Name:     "rk3576",
		NPUCores: []CoreMask{NPUCore0, NPUCore1},
		cpus: map[CoreType]uintptr{
			FastCores: 0b11110000, // cortex A72 cores 4-7
			SlowCores: 0b00001111, // cortex A53 cores 0-3
			AllCores:  0b11111111,
		},
	},
	"rk3568": {
		Name:     "rk3568",
		NPUCores: []CoreMask{NPUSkipSetCore},
		cpus:     sameCores(0b00001111),
	},
	"rk3566": {
		Name:     "rk3566",
		NPUCores: []CoreMask{NPUSkipSetCore},
		cpus:     sameCores(0b00001111),
	},
	"rk3562": {
		Name:     "rk3562",
		NPUCores: []CoreMask{NPUSkipSetCore},
		cpus:     sameCores(0b00001111),
	},
}

// sameCores returns a core type map for SoC's with a single cluster
func sameCores(mask uintptr) map[CoreType]uintptr {
	return map[CoreType]uintptr{
		FastCores: mask,
		SlowCores: mask,
		AllCores:  mask,
	}
}

// LookupPlatform returns the platform of the given name, one of
// rk3562|rk3566|rk3568|rk3576|rk3582|rk3588
func LookupPlatform(name string) (Platform, error) {

	name = strings.ToLower(strings.TrimSpace(name))

	p, ok := platforms[name]

	if !ok {
		return Platform{}, fmt.Errorf("unknown platform: %s", name)
	}

	return p, nil
}

// CPUMask returns the CPU affinity mask of the core type
func (p Platform) CPUMask(ct CoreType) uintptr {
	return p.cpus[ct]
}

// SetCPUAffinity pins the program to the platform's CPU cores of the given
// type
func (p Platform) SetCPUAffinity(ct CoreType) error {

	mask, ok := p.cpus[ct]

	if !ok {
		return fmt.Errorf("unknown core type %d for platform %s", ct, p.Name)
	}

	return SetCPUAffinity(mask)
}

// SetCPUAffinity sets the CPU Affinity mask of the program to run on the
// specified cores
func SetCPUAffinity(mask uintptr) error {

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// CPUCoreMask calculates the core mask by passing in the CPU core numbers as a
// slice, eg: []int{4,5,6,7}
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}
