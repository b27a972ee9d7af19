package builder

import (
	"fmt"

	"github.com/notargets/vadd/device"
)

// Direction indicates parameter data flow
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionInOut
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	case DirectionInOut:
		return "inout"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParamBuilder provides a fluent interface for building kernel parameters
type ParamBuilder struct {
	Spec ParamSpec
}

// ParamSpec holds the complete specification for a kernel parameter
type ParamSpec struct {
	Name        string
	Direction   Direction
	HostBinding []float32

	// Element count, inferred from the binding
	Size int64

	// Data movement
	DoCopyTo   bool
	DoCopyBack bool
}

// Input creates a parameter specification for a const input
func Input(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionInput,
		},
	}
}

// Output creates a parameter specification for a non-const output
func Output(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionOutput,
		},
	}
}

// InOut creates a parameter specification for a non-const input/output
func InOut(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionInOut,
		},
	}
}

// Bind associates a host slice with this parameter
func (p *ParamBuilder) Bind(host []float32) *ParamBuilder {
	p.Spec.HostBinding = host
	p.Spec.Size = int64(len(host))
	return p
}

// Copy sets bidirectional copy (host→device before, device→host after)
func (p *ParamBuilder) Copy() *ParamBuilder {
	p.Spec.DoCopyTo = true
	p.Spec.DoCopyBack = true
	return p
}

// CopyTo sets host→device copy before kernel execution
func (p *ParamBuilder) CopyTo() *ParamBuilder {
	p.Spec.DoCopyTo = true
	return p
}

// CopyBack sets device→host copy after kernel execution
func (p *ParamBuilder) CopyBack() *ParamBuilder {
	p.Spec.DoCopyBack = true
	return p
}

// NoCopy explicitly disables data movement
func (p *ParamBuilder) NoCopy() *ParamBuilder {
	p.Spec.DoCopyTo = false
	p.Spec.DoCopyBack = false
	return p
}

// Validate checks if the parameter specification is complete and valid
func (p *ParamSpec) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if !identRe.MatchString(p.Name) {
		return fmt.Errorf("parameter name %q is not a valid identifier", p.Name)
	}
	if p.HostBinding == nil {
		return fmt.Errorf("array %s needs binding", p.Name)
	}
	if p.Size == 0 {
		return fmt.Errorf("array %s needs size", p.Name)
	}
	// The device never sees output contents before the launch
	if p.Direction == DirectionOutput && p.DoCopyTo {
		return fmt.Errorf("output %s cannot be copied to the device", p.Name)
	}
	if p.Direction == DirectionInput && p.DoCopyBack {
		return fmt.Errorf("input %s cannot be copied back", p.Name)
	}
	return nil
}

// IsConst returns whether this parameter should be const in the kernel signature
func (p *ParamSpec) IsConst() bool {
	return p.Direction == DirectionInput
}

// Mode returns the device access mode for the parameter's buffer
func (p *ParamSpec) Mode() device.AccessMode {
	switch p.Direction {
	case DirectionInput:
		return device.ReadOnly
	case DirectionOutput:
		return device.WriteOnly
	default:
		return device.ReadWrite
	}
}

// Bytes is the device allocation size
func (p *ParamSpec) Bytes() int64 {
	return p.Size * 4
}

// NeedsCopyTo returns whether this parameter needs host→device copy
func (p *ParamSpec) NeedsCopyTo() bool {
	return p.DoCopyTo && p.HostBinding != nil
}

// NeedsCopyBack returns whether this parameter needs device→host copy
func (p *ParamSpec) NeedsCopyBack() bool {
	return p.DoCopyBack && p.HostBinding != nil
}
