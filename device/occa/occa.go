// Package occa runs kernels through the OCCA runtime. Each OCCA mode that can
// be instantiated on this machine is reported as a platform with a single
// device. Kernels are written in OKL; the launch geometry is fixed by the
// @outer/@inner loop bounds in the source, so Enqueue only checks that the
// requested sizes are consistent.
package occa

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"unsafe"

	"github.com/notargets/gocca"
	"github.com/notargets/vadd/device"
)

// Mode describes an OCCA backend mode
type Mode struct {
	Name  string
	Props string
	Type  device.Type
}

// DefaultModes lists the modes probed by Default, accelerators first
var DefaultModes = []Mode{
	{Name: "CUDA", Props: `{"mode": "CUDA", "device_id": 0}`, Type: device.TypeAccelerator},
	{Name: "HIP", Props: `{"mode": "HIP", "device_id": 0}`, Type: device.TypeAccelerator},
	{Name: "OpenCL", Props: `{"mode": "OpenCL", "platform_id": 0, "device_id": 0}`, Type: device.TypeAccelerator},
	{Name: "Metal", Props: `{"mode": "Metal", "device_id": 0}`, Type: device.TypeAccelerator},
	{Name: "OpenMP", Props: `{"mode": "OpenMP"}`, Type: device.TypeCPU},
	{Name: "Serial", Props: `{"mode": "Serial"}`, Type: device.TypeCPU},
}

const defaultMaxWorkGroupSize = 1024

// ParseMode builds a Mode from an OCCA property string such as
// {"mode": "CUDA", "device_id": 1}. Serial and OpenMP are CPU modes; every
// other mode is an accelerator.
func ParseMode(props string) (Mode, error) {
	var parsed struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal([]byte(props), &parsed); err != nil {
		return Mode{}, fmt.Errorf("occa properties %q: %w", props, err)
	}
	if parsed.Mode == "" {
		return Mode{}, fmt.Errorf("occa properties %q: missing mode", props)
	}
	m := Mode{Name: parsed.Mode, Props: props, Type: device.TypeAccelerator}
	switch parsed.Mode {
	case "Serial", "OpenMP":
		m.Type = device.TypeCPU
	}
	return m, nil
}

func init() {
	device.Register("occa", func() (device.Runtime, error) {
		return Default(), nil
	})
}

// Runtime is the OCCA compute runtime
type Runtime struct {
	modes []Mode

	once      sync.Once
	platforms []device.Platform
}

// New returns a runtime probing the given modes in order
func New(modes ...Mode) *Runtime {
	return &Runtime{modes: modes}
}

func Default() *Runtime { return New(DefaultModes...) }

func (rt *Runtime) Name() string { return "occa" }

func (rt *Runtime) Dialect() device.Dialect { return device.DialectOKL }

// Platforms returns the modes that could be instantiated. Probing creates
// and frees one device per mode and happens once per runtime.
func (rt *Runtime) Platforms() ([]device.Platform, error) {
	rt.once.Do(func() {
		for _, m := range rt.modes {
			dev, err := gocca.NewDevice(m.Props)
			if err != nil || dev == nil {
				continue
			}
			mode := dev.Mode()
			dev.Free()
			rt.platforms = append(rt.platforms, &Platform{mode: m, reported: mode})
		}
	})
	return rt.platforms, nil
}

// Platform is one OCCA mode
type Platform struct {
	mode     Mode
	reported string
}

func (p *Platform) Info() device.PlatformInfo {
	return device.PlatformInfo{Name: "OCCA " + p.reported, Vendor: "OCCA", Version: p.mode.Props}
}

func (p *Platform) Devices(filter device.Type) ([]device.Device, error) {
	if !filter.Matches(p.mode.Type) {
		return nil, nil
	}
	return []device.Device{&Device{mode: p.mode, name: p.reported}}, nil
}

// Device is device 0 of an OCCA mode
type Device struct {
	mode Mode
	name string
}

func (d *Device) Info() device.Info {
	return device.Info{
		Name:             d.name,
		Vendor:           "OCCA",
		Type:             d.mode.Type,
		MaxWorkGroupSize: defaultMaxWorkGroupSize,
	}
}

func (d *Device) NewContext() (device.Context, error) {
	dev, err := gocca.NewDevice(d.mode.Props)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrContextCreation, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: mode %s returned no device", device.ErrContextCreation, d.mode.Name)
	}
	return &Context{dev: dev}, nil
}

// Context owns an OCCA device handle
type Context struct {
	dev      *gocca.OCCADevice
	released bool
}

// NewQueue returns the device's default stream
func (c *Context) NewQueue() (device.Queue, error) {
	if c.released {
		return nil, fmt.Errorf("%w: context released", device.ErrQueueCreation)
	}
	return &Queue{ctx: c}, nil
}

var okernelRe = regexp.MustCompile(`@kernel\s+void\s+([A-Za-z_]\w*)\s*\(`)

// BuildProgram keeps the source for per-kernel builds. OCCA compiles a
// kernel when it is first requested by name.
func (c *Context) BuildProgram(source string) (device.Program, error) {
	matches := okernelRe.FindAllStringSubmatch(source, -1)
	if len(matches) == 0 {
		return nil, &device.CompileError{Log: "program.okl:1: error: no @kernel functions defined in program"}
	}
	names := make(map[string]bool, len(matches))
	for _, m := range matches {
		names[m[1]] = true
	}
	return &Program{ctx: c, source: source, entries: names}, nil
}

func (c *Context) Malloc(bytes int64, mode device.AccessMode) (device.Memory, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("%w: invalid buffer size %d bytes", device.ErrAllocation, bytes)
	}
	mem := c.dev.Malloc(bytes, nil, nil)
	if mem == nil {
		return nil, fmt.Errorf("%w: OCCA %s malloc of %d bytes", device.ErrAllocation, c.dev.Mode(), bytes)
	}
	return &Memory{mem: mem, size: bytes, mode: mode}, nil
}

func (c *Context) Release() error {
	if c.released {
		return fmt.Errorf("%w: context", device.ErrReleased)
	}
	c.released = true
	c.dev.Free()
	return nil
}

// Queue submits to the OCCA device stream
type Queue struct {
	ctx      *Context
	released bool
}

func (q *Queue) Write(mem device.Memory, src []float32) error {
	m, err := transferTarget(mem, len(src))
	if err != nil || len(src) == 0 {
		return err
	}
	m.mem.CopyFrom(unsafe.Pointer(&src[0]), int64(len(src)*4))
	return nil
}

func (q *Queue) Read(mem device.Memory, dst []float32) error {
	m, err := transferTarget(mem, len(dst))
	if err != nil || len(dst) == 0 {
		return err
	}
	q.ctx.dev.Finish()
	m.mem.CopyTo(unsafe.Pointer(&dst[0]), int64(len(dst)*4))
	return nil
}

func transferTarget(mem device.Memory, n int) (*Memory, error) {
	m, ok := mem.(*Memory)
	if !ok || m == nil || m.released {
		return nil, fmt.Errorf("%w: not a live OCCA buffer", device.ErrTransfer)
	}
	if int64(n)*4 > m.size {
		return nil, fmt.Errorf("%w: %d bytes exceeds buffer size %d", device.ErrTransfer, n*4, m.size)
	}
	return m, nil
}

func (q *Queue) Enqueue(k device.Kernel, global, local int) error {
	kern, ok := k.(*Kernel)
	if !ok || kern == nil || kern.released {
		return fmt.Errorf("%w: not a live OCCA kernel", device.ErrLaunch)
	}
	if global <= 0 || local <= 0 || global%local != 0 {
		return fmt.Errorf("%w: invalid work size global=%d local=%d", device.ErrLaunch, global, local)
	}
	if local > defaultMaxWorkGroupSize {
		return fmt.Errorf("%w: work-group size %d exceeds device maximum %d",
			device.ErrLaunch, local, defaultMaxWorkGroupSize)
	}
	args := make([]interface{}, len(kern.args))
	for i, m := range kern.args {
		if m == nil || m.released {
			return fmt.Errorf("%w: kernel %s argument %d is not set", device.ErrLaunch, kern.name, i)
		}
		args[i] = m.mem
	}
	if err := kern.kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("%w: kernel %s: %v", device.ErrLaunch, kern.name, err)
	}
	return nil
}

func (q *Queue) Finish() error {
	if q.released {
		return fmt.Errorf("%w: command queue", device.ErrReleased)
	}
	q.ctx.dev.Finish()
	return nil
}

func (q *Queue) Release() error {
	if q.released {
		return fmt.Errorf("%w: command queue", device.ErrReleased)
	}
	q.released = true
	return nil
}

// Program holds OKL source and the entry points it declares
type Program struct {
	ctx      *Context
	source   string
	entries  map[string]bool
	released bool
}

// Kernel builds the named entry point. OpenMP builds get -O3, which OCCA
// does not apply by default in that mode.
func (p *Program) Kernel(name string) (device.Kernel, error) {
	if p.released {
		return nil, fmt.Errorf("%w: program", device.ErrReleased)
	}
	if !p.entries[name] {
		return nil, fmt.Errorf("%w: %q", device.ErrEntryPointNotFound, name)
	}

	var kernel *gocca.OCCAKernel
	var err error
	if p.ctx.dev.Mode() == "OpenMP" {
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = p.ctx.dev.BuildKernelFromString(p.source, name, props)
	} else {
		kernel, err = p.ctx.dev.BuildKernelFromString(p.source, name, nil)
	}
	if err != nil {
		return nil, &device.CompileError{Log: err.Error(), Err: fmt.Errorf("failed to build kernel %s", name)}
	}
	if kernel == nil {
		return nil, &device.CompileError{Log: fmt.Sprintf("kernel build returned nil for %s", name)}
	}
	return &Kernel{kernel: kernel, name: name}, nil
}

func (p *Program) Release() error {
	if p.released {
		return fmt.Errorf("%w: program", device.ErrReleased)
	}
	p.released = true
	return nil
}

// Kernel is a built OCCA kernel with its bound buffers
type Kernel struct {
	kernel   *gocca.OCCAKernel
	name     string
	args     []*Memory
	released bool
}

func (k *Kernel) Name() string { return k.name }

func (k *Kernel) SetArg(index int, mem device.Memory) error {
	m, ok := mem.(*Memory)
	if !ok || m == nil || m.released {
		return fmt.Errorf("%w: kernel %s argument %d is not a live OCCA buffer",
			device.ErrArgumentBinding, k.name, index)
	}
	if index < 0 {
		return fmt.Errorf("%w: kernel %s argument index %d", device.ErrArgumentBinding, k.name, index)
	}
	for len(k.args) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = m
	return nil
}

func (k *Kernel) Release() error {
	if k.released {
		return fmt.Errorf("%w: kernel", device.ErrReleased)
	}
	k.released = true
	k.kernel.Free()
	k.args = nil
	return nil
}

// Memory is an OCCA device allocation
type Memory struct {
	mem      *gocca.OCCAMemory
	size     int64
	mode     device.AccessMode
	released bool
}

func (m *Memory) Size() int64 { return m.size }

func (m *Memory) Mode() device.AccessMode { return m.mode }

func (m *Memory) Release() error {
	if m.released {
		return fmt.Errorf("%w: buffer", device.ErrReleased)
	}
	m.released = true
	m.mem.Free()
	return nil
}
