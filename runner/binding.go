package runner

import (
	"fmt"

	"github.com/notargets/vadd/device"
	"github.com/notargets/vadd/runner/builder"
)

// ActionFlags represents the memory operations to perform for a parameter
type ActionFlags int

const (
	NoAction ActionFlags = 0
	// Copy from host to device before kernel execution
	CopyTo ActionFlags = 1 << 0
	// Copy from device to host after kernel execution
	CopyBack ActionFlags = 1 << 1
	// Bidirectional copy (CopyTo | CopyBack)
	Copy = CopyTo | CopyBack
)

// DeviceBinding represents a host↔device data binding
type DeviceBinding struct {
	Name        string
	HostBinding []float32

	// Total number of elements
	Size int64
	Mode device.AccessMode
	// Whether parameter can be written to in kernel
	IsOutput bool

	ParamSpec *builder.ParamSpec
}

// Bytes is the device allocation size
func (b *DeviceBinding) Bytes() int64 { return b.Size * 4 }

// ParameterUsage represents how a binding is used in a specific kernel or copy operation
type ParameterUsage struct {
	Binding *DeviceBinding
	Actions ActionFlags
}

// HasAction checks if a specific action is set
func (pu *ParameterUsage) HasAction(action ActionFlags) bool {
	return pu.Actions&action != 0
}

// NeedsCopyTo returns true if this usage requires host→device copy
func (pu *ParameterUsage) NeedsCopyTo() bool {
	return pu.HasAction(CopyTo)
}

// NeedsCopyBack returns true if this usage requires device→host copy
func (pu *ParameterUsage) NeedsCopyBack() bool {
	return pu.HasAction(CopyBack)
}

// DefineBindings establishes host↔device data relationships. The parameter
// order is the kernel argument order.
func (kr *Runner) DefineBindings(params ...*builder.ParamBuilder) error {
	if kr.IsAllocated {
		return InvalidInputError("bindings cannot be defined after AllocateDevice has been called")
	}
	if err := kr.SetParams(params...); err != nil {
		return InvalidInputError("%v", err)
	}

	kr.Bindings = make(map[string]*DeviceBinding, len(kr.Params))
	for i := range kr.Params {
		spec := &kr.Params[i]
		kr.Bindings[spec.Name] = &DeviceBinding{
			Name:        spec.Name,
			HostBinding: spec.HostBinding,
			Size:        spec.Size,
			Mode:        spec.Mode(),
			IsOutput:    !spec.IsConst(),
			ParamSpec:   spec,
		}
	}
	return nil
}

// GetBinding retrieves a binding by name
func (kr *Runner) GetBinding(name string) *DeviceBinding {
	return kr.Bindings[name]
}

// HasBinding checks if a binding exists
func (kr *Runner) HasBinding(name string) bool {
	_, exists := kr.Bindings[name]
	return exists
}

// AllocateDevice allocates one device buffer per binding in argument order.
// A failure leaves the buffers allocated so far pooled for Free.
func (kr *Runner) AllocateDevice() error {
	if kr.IsAllocated {
		return InvalidInputError("device memory already allocated")
	}
	if len(kr.Params) == 0 {
		return InvalidInputError("no bindings defined - use DefineBindings first")
	}
	for _, spec := range kr.Params {
		binding := kr.Bindings[spec.Name]
		if _, err := kr.Allocate(binding.Name, binding.Bytes(), binding.Mode); err != nil {
			return err
		}
	}
	kr.IsAllocated = true
	return nil
}

// argumentNames returns the binding names in kernel argument order
func (kr *Runner) argumentNames() []string {
	names := make([]string, len(kr.Params))
	for i, spec := range kr.Params {
		names[i] = spec.Name
	}
	return names
}

func (kr *Runner) requireBinding(name string) (*DeviceBinding, error) {
	binding := kr.GetBinding(name)
	if binding == nil {
		return nil, InvalidInputError("no binding named %s", name)
	}
	return binding, nil
}

func bindingSummary(b *DeviceBinding) string {
	return fmt.Sprintf("%s[%d] %s", b.Name, b.Size, b.Mode)
}
