package opencl

import (
	"fmt"

	"github.com/notargets/vadd/device"
)

var statusNames = map[int32]string{
	-1:    "CL_DEVICE_NOT_FOUND",
	-2:    "CL_DEVICE_NOT_AVAILABLE",
	-3:    "CL_COMPILER_NOT_AVAILABLE",
	-4:    "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	-5:    "CL_OUT_OF_RESOURCES",
	-6:    "CL_OUT_OF_HOST_MEMORY",
	-11:   "CL_BUILD_PROGRAM_FAILURE",
	-14:   "CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST",
	-30:   "CL_INVALID_VALUE",
	-32:   "CL_INVALID_PLATFORM",
	-33:   "CL_INVALID_DEVICE",
	-34:   "CL_INVALID_CONTEXT",
	-36:   "CL_INVALID_COMMAND_QUEUE",
	-38:   "CL_INVALID_MEM_OBJECT",
	-44:   "CL_INVALID_PROGRAM",
	-45:   "CL_INVALID_PROGRAM_EXECUTABLE",
	-46:   "CL_INVALID_KERNEL_NAME",
	-48:   "CL_INVALID_KERNEL",
	-49:   "CL_INVALID_ARG_INDEX",
	-50:   "CL_INVALID_ARG_VALUE",
	-51:   "CL_INVALID_ARG_SIZE",
	-52:   "CL_INVALID_KERNEL_ARGS",
	-53:   "CL_INVALID_WORK_DIMENSION",
	-54:   "CL_INVALID_WORK_GROUP_SIZE",
	-55:   "CL_INVALID_WORK_ITEM_SIZE",
	-61:   "CL_INVALID_BUFFER_SIZE",
	-63:   "CL_INVALID_GLOBAL_WORK_SIZE",
	-1001: "CL_PLATFORM_NOT_FOUND_KHR",
}

// StatusName returns the symbolic name of an OpenCL status code
func StatusName(code int32) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return fmt.Sprintf("CL_ERROR(%d)", code)
}

// StatusError is a failed OpenCL call. It unwraps to the device sentinel
// that classifies the failure.
type StatusError struct {
	Call string
	Code int32
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %s returned %s", e.Err, e.Call, StatusName(e.Code))
}

func (e *StatusError) Unwrap() error { return e.Err }

// statusError wraps a failed call. Codes with an unambiguous meaning pick
// their own sentinel; everything else takes the caller's fallback.
func statusError(fallback error, call string, code int32) error {
	sentinel := fallback
	switch code {
	case -1:
		sentinel = device.ErrNoDevice
	case -4, -61:
		sentinel = device.ErrAllocation
	case -11:
		sentinel = device.ErrCompile
	case -46:
		sentinel = device.ErrEntryPointNotFound
	case -49, -50, -51:
		sentinel = device.ErrArgumentBinding
	case -1001:
		sentinel = device.ErrNoPlatform
	}
	return &StatusError{Call: call, Code: code, Err: sentinel}
}
