package utils

import (
	"fmt"

	"github.com/notargets/vadd/device"
)

// OpenRuntime opens a registered backend and checks that it exposes at
// least one platform
func OpenRuntime(backend string) (device.Runtime, error) {
	rt, err := device.Open(backend)
	if err != nil {
		return nil, err
	}
	platforms, err := rt.Platforms()
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", backend, err)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("backend %s: %w", backend, device.ErrNoPlatform)
	}
	return rt, nil
}

// CreateTestRuntime returns the first usable runtime, preferring parallel
// backends. The order mirrors how devices are picked for benchmarks: real
// drivers first, then the host fallback.
func CreateTestRuntime(backends ...string) device.Runtime {
	if len(backends) == 0 {
		backends = []string{"opencl", "occa", "host"}
	}
	for _, name := range backends {
		rt, err := OpenRuntime(name)
		if err == nil {
			fmt.Printf("Created %s Runtime\n", rt.Name())
			return rt
		}
	}

	// Should not reach here when host is registered
	panic(fmt.Sprintf("Failed to create any Runtime from %v", backends))
}
