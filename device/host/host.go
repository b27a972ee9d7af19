// Package host is a pure-Go compute runtime that executes kernels on the
// CPU. It accepts OpenCL C source, binds each __kernel entry point to a
// built-in Go body, and runs work-groups in parallel goroutines.
//
// The runtime enforces the same resource rules a driver does: device memory
// is finite, contexts may be exclusive, command queues are limited, and a
// context cannot be released while anything created through it is alive.
package host

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/notargets/vadd/device"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMemoryBytes      = int64(1) << 30
	DefaultMaxWorkGroupSize = 1024
	DefaultMaxQueues        = 4
)

func init() {
	device.Register("host", func() (device.Runtime, error) {
		return Default(), nil
	})
}

// DeviceSpec describes one simulated device
type DeviceSpec struct {
	Name string
	// Type is CPU unless set to TypeAccelerator
	Type device.Type
	// MemoryBytes is the device memory capacity. 0 selects DefaultMemoryBytes.
	MemoryBytes int64
	// MaxWorkGroupSize 0 selects DefaultMaxWorkGroupSize
	MaxWorkGroupSize int
	// MaxQueues 0 selects DefaultMaxQueues; a negative value exposes none
	MaxQueues int
	// Exclusive devices accept a single context at a time
	Exclusive bool
	// Workers bounds the goroutines running work-groups. 0 selects NumCPU.
	Workers int
}

// PlatformSpec describes a platform and its devices
type PlatformSpec struct {
	Name    string
	Vendor  string
	Devices []DeviceSpec
}

// Runtime is the host compute runtime
type Runtime struct {
	platforms []*Platform
}

// New builds a runtime with the given platforms. With no arguments the
// runtime has zero platforms.
func New(platforms ...PlatformSpec) *Runtime {
	rt := &Runtime{}
	for _, ps := range platforms {
		p := &Platform{
			info: device.PlatformInfo{
				Name:    ps.Name,
				Vendor:  ps.Vendor,
				Version: "Go Host 1.0",
			},
		}
		if p.info.Name == "" {
			p.info.Name = "Go Host"
		}
		if p.info.Vendor == "" {
			p.info.Vendor = "vadd"
		}
		for _, ds := range ps.Devices {
			p.devices = append(p.devices, newDevice(ds))
		}
		rt.platforms = append(rt.platforms, p)
	}
	return rt
}

// Default returns a runtime with one platform holding one CPU device
func Default() *Runtime {
	return New(PlatformSpec{
		Name:    "Go Host",
		Devices: []DeviceSpec{{Name: fmt.Sprintf("Go CPU (%d threads)", runtime.NumCPU())}},
	})
}

func (rt *Runtime) Name() string { return "host" }

func (rt *Runtime) Dialect() device.Dialect { return device.DialectOpenCL }

func (rt *Runtime) Platforms() ([]device.Platform, error) {
	out := make([]device.Platform, len(rt.platforms))
	for i, p := range rt.platforms {
		out[i] = p
	}
	return out, nil
}

// Platform is a host platform
type Platform struct {
	info    device.PlatformInfo
	devices []*Device
}

func (p *Platform) Info() device.PlatformInfo { return p.info }

func (p *Platform) Devices(filter device.Type) ([]device.Device, error) {
	var out []device.Device
	for _, d := range p.devices {
		if filter.Matches(d.spec.Type) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Stats counts live objects on a device
type Stats struct {
	Contexts    int
	Queues      int
	Programs    int
	Kernels     int
	Buffers     int
	MemoryInUse int64
}

// Live reports the total number of live objects
func (s Stats) Live() int {
	return s.Contexts + s.Queues + s.Programs + s.Kernels + s.Buffers
}

// Device is a host device
type Device struct {
	spec   DeviceSpec
	memory *semaphore.Weighted

	mu    sync.Mutex
	stats Stats
}

func newDevice(spec DeviceSpec) *Device {
	if spec.Type != device.TypeAccelerator {
		spec.Type = device.TypeCPU
	}
	if spec.Name == "" {
		spec.Name = "Go CPU"
	}
	if spec.MemoryBytes <= 0 {
		spec.MemoryBytes = DefaultMemoryBytes
	}
	if spec.MaxWorkGroupSize <= 0 {
		spec.MaxWorkGroupSize = DefaultMaxWorkGroupSize
	}
	if spec.MaxQueues == 0 {
		spec.MaxQueues = DefaultMaxQueues
	}
	if spec.Workers <= 0 {
		spec.Workers = runtime.NumCPU()
	}
	return &Device{
		spec:   spec,
		memory: semaphore.NewWeighted(spec.MemoryBytes),
	}
}

func (d *Device) Info() device.Info {
	return device.Info{
		Name:             d.spec.Name,
		Vendor:           "vadd",
		Type:             d.spec.Type,
		MemoryBytes:      d.spec.MemoryBytes,
		MaxAllocBytes:    d.spec.MemoryBytes,
		MaxWorkGroupSize: d.spec.MaxWorkGroupSize,
	}
}

// Stats returns a snapshot of live object counts
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Device) NewContext() (device.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spec.Exclusive && d.stats.Contexts > 0 {
		return nil, fmt.Errorf("%w: device %q is busy (exclusive, %d context open)",
			device.ErrContextCreation, d.spec.Name, d.stats.Contexts)
	}
	d.stats.Contexts++
	return &Context{dev: d}, nil
}
