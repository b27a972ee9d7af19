// Package device defines the compute runtime abstraction used by the runner.
//
// A Runtime exposes Platforms, a Platform exposes Devices, and a Device opens
// a Context. Everything allocated through a Context (queues, programs,
// kernels, memory) must be released before the Context itself.
//
//	Runtime -> Platform -> Device -> Context -> Queue
//	                                         -> Program -> Kernel
//	                                         -> Memory
package device

import (
	"fmt"
	"strings"
)

// Type classifies a device and doubles as the resolver filter
type Type int

const (
	TypeAll Type = iota
	TypeCPU
	TypeAccelerator
)

func (t Type) String() string {
	switch t {
	case TypeAll:
		return "all"
	case TypeCPU:
		return "cpu"
	case TypeAccelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType converts a filter name ("all", "cpu", "accelerator", "gpu")
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return TypeAll, nil
	case "cpu":
		return TypeCPU, nil
	case "accelerator", "gpu":
		return TypeAccelerator, nil
	default:
		return TypeAll, fmt.Errorf("unknown device type %q", s)
	}
}

// Matches reports whether a device of type dt passes the filter t
func (t Type) Matches(dt Type) bool {
	return t == TypeAll || t == dt
}

// MarshalText lets Type round-trip through YAML and flags
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a filter name
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// AccessMode describes how a kernel may touch a buffer
type AccessMode int

const (
	ReadWrite AccessMode = iota
	ReadOnly
	WriteOnly
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	default:
		return "read-write"
	}
}

// CanRead reports whether the kernel may read the buffer
func (m AccessMode) CanRead() bool { return m != WriteOnly }

// CanWrite reports whether the kernel may write the buffer
func (m AccessMode) CanWrite() bool { return m != ReadOnly }

// Dialect is the kernel language a runtime compiles
type Dialect int

const (
	DialectOpenCL Dialect = iota + 1
	DialectOKL
)

func (d Dialect) String() string {
	switch d {
	case DialectOpenCL:
		return "OpenCL C"
	case DialectOKL:
		return "OKL"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// PlatformInfo describes a platform
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
}

// Info describes a device
type Info struct {
	Name             string
	Vendor           string
	Type             Type
	MemoryBytes      int64
	MaxAllocBytes    int64
	MaxWorkGroupSize int
}

// Runtime is a compute API implementation (host, OpenCL, OCCA)
type Runtime interface {
	Name() string
	Dialect() Dialect
	Platforms() ([]Platform, error)
}

// Platform groups the devices of one driver or mode
type Platform interface {
	Info() PlatformInfo
	// Devices returns the devices matching filter in driver order. An empty
	// result is not an error.
	Devices(filter Type) ([]Device, error)
}

// Device is a single compute device
type Device interface {
	Info() Info
	NewContext() (Context, error)
}

// Context owns all device-side objects created through it
type Context interface {
	// NewQueue creates an in-order command queue
	NewQueue() (Queue, error)
	// BuildProgram compiles source for the context's device
	BuildProgram(source string) (Program, error)
	Malloc(bytes int64, mode AccessMode) (Memory, error)
	Release() error
}

// Queue submits commands in order. Write and Read block until complete.
type Queue interface {
	Write(mem Memory, src []float32) error
	Read(mem Memory, dst []float32) error
	// Enqueue submits a one-dimensional launch and returns without waiting
	Enqueue(k Kernel, global, local int) error
	// Finish blocks until every submitted command has completed and reports
	// any fault raised during execution
	Finish() error
	Release() error
}

// Program is a compiled unit of source
type Program interface {
	Kernel(name string) (Kernel, error)
	Release() error
}

// Kernel is a device-bound entry point with mutable argument state
type Kernel interface {
	Name() string
	SetArg(index int, mem Memory) error
	Release() error
}

// Memory is a device-resident allocation
type Memory interface {
	Size() int64
	Mode() AccessMode
	Release() error
}
