package device

import (
	"errors"
	"fmt"
)

var (
	ErrNoPlatform         = errors.New("device: no compute platform found")
	ErrNoDevice           = errors.New("device: no matching device found")
	ErrContextCreation    = errors.New("device: context creation failed")
	ErrQueueCreation      = errors.New("device: command queue creation failed")
	ErrCompile            = errors.New("device: kernel compilation failed")
	ErrEntryPointNotFound = errors.New("device: kernel entry point not found")
	ErrAllocation         = errors.New("device: memory allocation failed")
	ErrTransfer           = errors.New("device: memory transfer failed")
	ErrArgumentBinding    = errors.New("device: kernel argument binding failed")
	ErrLaunch             = errors.New("device: kernel launch rejected")
	ErrExecution          = errors.New("device: kernel execution fault")
	ErrReleased           = errors.New("device: object already released")
	ErrResourceBusy       = errors.New("device: object still in use")
	ErrUnknownBackend     = errors.New("device: unknown backend")
)

// CompileError carries the compiler diagnostic for a failed build
type CompileError struct {
	Log string
	Err error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v\n%s", ErrCompile, e.Err, e.Log)
	}
	return fmt.Sprintf("%v\n%s", ErrCompile, e.Log)
}

// Is matches ErrCompile so callers can use errors.Is on either form
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}

func (e *CompileError) Unwrap() error { return e.Err }
