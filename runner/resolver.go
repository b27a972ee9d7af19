package runner

import (
	"fmt"

	"github.com/notargets/vadd/device"
)

// Resolve selects the first device matching filter on the first platform of
// rt. Only the first platform is considered; a machine whose first platform
// lacks a matching device reports NoDevice even if a later one has it.
func Resolve(rt device.Runtime, filter device.Type) (*DeviceHandle, error) {
	platforms, err := rt.Platforms()
	if err != nil {
		return nil, newError(StepResolve, KindResolution, err)
	}
	if len(platforms) == 0 {
		return nil, newError(StepResolve, KindResolution,
			fmt.Errorf("%w: runtime %s reports no platforms", device.ErrNoPlatform, rt.Name()))
	}

	platform := platforms[0]
	devices, err := platform.Devices(filter)
	if err != nil {
		return nil, newError(StepResolve, KindResolution, err)
	}
	if len(devices) == 0 {
		return nil, newError(StepResolve, KindResolution,
			fmt.Errorf("%w: platform %q has no %s device", device.ErrNoDevice, platform.Info().Name, filter))
	}
	return &DeviceHandle{Runtime: rt, Platform: platform, Device: devices[0]}, nil
}
