package opencl

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/notargets/vadd/device"
)

// Platform is one installed OpenCL platform
type Platform struct {
	id   clPlatformID
	info device.PlatformInfo
}

func (p *Platform) Info() device.PlatformInfo { return p.info }

func (p *Platform) Devices(filter device.Type) ([]device.Device, error) {
	var clType uint64
	switch filter {
	case device.TypeCPU:
		clType = CL_DEVICE_TYPE_CPU
	case device.TypeAccelerator:
		clType = CL_DEVICE_TYPE_GPU | CL_DEVICE_TYPE_ACCELERATOR
	default:
		clType = CL_DEVICE_TYPE_ALL
	}

	var count uint32
	code := clGetDeviceIDs(p.id, clType, 0, nil, &count)
	if code == -1 || count == 0 {
		// CL_DEVICE_NOT_FOUND: nothing of this type on the platform
		return nil, nil
	}
	if code != CL_SUCCESS {
		return nil, statusError(device.ErrNoDevice, "clGetDeviceIDs", code)
	}
	ids := make([]clDeviceID, count)
	if code := clGetDeviceIDs(p.id, clType, count, &ids[0], nil); code != CL_SUCCESS {
		return nil, statusError(device.ErrNoDevice, "clGetDeviceIDs", code)
	}

	devices := make([]device.Device, 0, count)
	for _, id := range ids {
		devices = append(devices, newDevice(id))
	}
	return devices, nil
}

// Device is an OpenCL device
type Device struct {
	id   clDeviceID
	info device.Info
}

func newDevice(id clDeviceID) *Device {
	d := &Device{id: id}
	d.info.Name = deviceString(id, CL_DEVICE_NAME)
	d.info.Vendor = deviceString(id, CL_DEVICE_VENDOR)

	var clType uint64
	deviceValue(id, CL_DEVICE_TYPE, unsafe.Pointer(&clType), unsafe.Sizeof(clType))
	if clType&CL_DEVICE_TYPE_CPU != 0 {
		d.info.Type = device.TypeCPU
	} else {
		d.info.Type = device.TypeAccelerator
	}

	var globalMem, maxAlloc uint64
	var maxGroup uintptr
	deviceValue(id, CL_DEVICE_GLOBAL_MEM_SIZE, unsafe.Pointer(&globalMem), unsafe.Sizeof(globalMem))
	deviceValue(id, CL_DEVICE_MAX_MEM_ALLOC_SIZE, unsafe.Pointer(&maxAlloc), unsafe.Sizeof(maxAlloc))
	deviceValue(id, CL_DEVICE_MAX_WORK_GROUP_SIZE, unsafe.Pointer(&maxGroup), unsafe.Sizeof(maxGroup))
	d.info.MemoryBytes = int64(globalMem)
	d.info.MaxAllocBytes = int64(maxAlloc)
	d.info.MaxWorkGroupSize = int(maxGroup)
	return d
}

func deviceValue(id clDeviceID, param uint32, value unsafe.Pointer, size uintptr) {
	clGetDeviceInfo(id, param, size, value, nil)
}

func deviceString(id clDeviceID, param uint32) string {
	var size uintptr
	if clGetDeviceInfo(id, param, 0, nil, &size) != CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, size)
	if clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil) != CL_SUCCESS {
		return ""
	}
	return cString(buf)
}

func (d *Device) Info() device.Info { return d.info }

func (d *Device) NewContext() (device.Context, error) {
	var code int32
	id := d.id
	ctx := clCreateContext(0, 1, &id, 0, 0, &code)
	if code != CL_SUCCESS || ctx == 0 {
		return nil, statusError(device.ErrContextCreation, "clCreateContext", code)
	}
	return &Context{handle: ctx, dev: d}, nil
}

// Context is an OpenCL context bound to a single device
type Context struct {
	handle   clContext
	dev      *Device
	mu       sync.Mutex
	released bool
}

func (c *Context) NewQueue() (device.Queue, error) {
	var code int32
	q := clCreateCommandQueue(c.handle, c.dev.id, 0, &code)
	if code != CL_SUCCESS || q == 0 {
		return nil, statusError(device.ErrQueueCreation, "clCreateCommandQueue", code)
	}
	return &Queue{handle: q, ctx: c}, nil
}

// BuildProgram creates and builds a program. On CL_BUILD_PROGRAM_FAILURE the
// returned CompileError carries the device build log.
func (c *Context) BuildProgram(source string) (device.Program, error) {
	src := append([]byte(source), 0)
	ptr := &src[0]
	length := uintptr(len(source))

	var code int32
	prog := clCreateProgramWithSource(c.handle, 1, &ptr, &length, &code)
	if code != CL_SUCCESS || prog == 0 {
		return nil, statusError(device.ErrCompile, "clCreateProgramWithSource", code)
	}

	id := c.dev.id
	if code := clBuildProgram(prog, 1, &id, "", 0, 0); code != CL_SUCCESS {
		log := buildLog(prog, id)
		clReleaseProgram(prog)
		return nil, &device.CompileError{
			Log: log,
			Err: statusError(device.ErrCompile, "clBuildProgram", code),
		}
	}
	return &Program{handle: prog}, nil
}

func buildLog(prog clProgram, dev clDeviceID) string {
	var size uintptr
	if clGetProgramBuildInfo(prog, dev, CL_PROGRAM_BUILD_LOG, 0, nil, &size) != CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, size)
	if clGetProgramBuildInfo(prog, dev, CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil) != CL_SUCCESS {
		return ""
	}
	return cString(buf)
}

func (c *Context) Malloc(bytes int64, mode device.AccessMode) (device.Memory, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("%w: invalid buffer size %d bytes", device.ErrAllocation, bytes)
	}
	var flags uint64
	switch mode {
	case device.ReadOnly:
		flags = CL_MEM_READ_ONLY
	case device.WriteOnly:
		flags = CL_MEM_WRITE_ONLY
	default:
		flags = CL_MEM_READ_WRITE
	}

	var code int32
	mem := clCreateBuffer(c.handle, flags, uintptr(bytes), nil, &code)
	if code != CL_SUCCESS || mem == 0 {
		return nil, statusError(device.ErrAllocation, "clCreateBuffer", code)
	}
	return &Memory{handle: mem, size: bytes, mode: mode}, nil
}

func (c *Context) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return fmt.Errorf("%w: context", device.ErrReleased)
	}
	c.released = true
	if code := clReleaseContext(c.handle); code != CL_SUCCESS {
		return statusError(device.ErrResourceBusy, "clReleaseContext", code)
	}
	return nil
}

// Queue is an in-order OpenCL command queue
type Queue struct {
	handle   clCommandQueue
	ctx      *Context
	released bool
}

func (q *Queue) Write(mem device.Memory, src []float32) error {
	m, err := transferTarget(mem, len(src))
	if err != nil || len(src) == 0 {
		return err
	}
	code := clEnqueueWriteBuffer(q.handle, m.handle, CL_TRUE, 0, uintptr(len(src)*4),
		unsafe.Pointer(&src[0]), 0, 0, 0)
	if code != CL_SUCCESS {
		return statusError(device.ErrTransfer, "clEnqueueWriteBuffer", code)
	}
	return nil
}

func (q *Queue) Read(mem device.Memory, dst []float32) error {
	m, err := transferTarget(mem, len(dst))
	if err != nil || len(dst) == 0 {
		return err
	}
	code := clEnqueueReadBuffer(q.handle, m.handle, CL_TRUE, 0, uintptr(len(dst)*4),
		unsafe.Pointer(&dst[0]), 0, 0, 0)
	if code != CL_SUCCESS {
		return statusError(device.ErrTransfer, "clEnqueueReadBuffer", code)
	}
	return nil
}

func transferTarget(mem device.Memory, n int) (*Memory, error) {
	m, ok := mem.(*Memory)
	if !ok || m == nil || m.released {
		return nil, fmt.Errorf("%w: not a live OpenCL buffer", device.ErrTransfer)
	}
	if int64(n)*4 > m.size {
		return nil, fmt.Errorf("%w: %d bytes exceeds buffer size %d", device.ErrTransfer, n*4, m.size)
	}
	return m, nil
}

func (q *Queue) Enqueue(k device.Kernel, global, local int) error {
	kern, ok := k.(*Kernel)
	if !ok || kern == nil || kern.released {
		return fmt.Errorf("%w: not a live OpenCL kernel", device.ErrLaunch)
	}
	if global <= 0 || local <= 0 {
		return fmt.Errorf("%w: invalid work size global=%d local=%d", device.ErrLaunch, global, local)
	}
	g, l := uintptr(global), uintptr(local)
	code := clEnqueueNDRangeKernel(q.handle, kern.handle, 1, nil, &g, &l, 0, 0, 0)
	if code != CL_SUCCESS {
		return statusError(device.ErrLaunch, "clEnqueueNDRangeKernel", code)
	}
	return nil
}

func (q *Queue) Finish() error {
	if code := clFinish(q.handle); code != CL_SUCCESS {
		return statusError(device.ErrExecution, "clFinish", code)
	}
	return nil
}

func (q *Queue) Release() error {
	if q.released {
		return fmt.Errorf("%w: command queue", device.ErrReleased)
	}
	q.released = true
	if code := clReleaseCommandQueue(q.handle); code != CL_SUCCESS {
		return statusError(device.ErrResourceBusy, "clReleaseCommandQueue", code)
	}
	return nil
}

// Program is a built OpenCL program
type Program struct {
	handle   clProgram
	released bool
}

func (p *Program) Kernel(name string) (device.Kernel, error) {
	var code int32
	k := clCreateKernel(p.handle, name, &code)
	if code != CL_SUCCESS || k == 0 {
		return nil, statusError(device.ErrEntryPointNotFound, "clCreateKernel", code)
	}
	return &Kernel{handle: k, name: name}, nil
}

func (p *Program) Release() error {
	if p.released {
		return fmt.Errorf("%w: program", device.ErrReleased)
	}
	p.released = true
	if code := clReleaseProgram(p.handle); code != CL_SUCCESS {
		return statusError(device.ErrResourceBusy, "clReleaseProgram", code)
	}
	return nil
}

// Kernel is an OpenCL kernel object
type Kernel struct {
	handle   clKernel
	name     string
	released bool
}

func (k *Kernel) Name() string { return k.name }

func (k *Kernel) SetArg(index int, mem device.Memory) error {
	m, ok := mem.(*Memory)
	if !ok || m == nil || m.released {
		return fmt.Errorf("%w: kernel %s argument %d is not a live OpenCL buffer",
			device.ErrArgumentBinding, k.name, index)
	}
	handle := m.handle
	code := clSetKernelArg(k.handle, uint32(index), unsafe.Sizeof(handle), unsafe.Pointer(&handle))
	if code != CL_SUCCESS {
		return statusError(device.ErrArgumentBinding, fmt.Sprintf("clSetKernelArg(%d)", index), code)
	}
	return nil
}

func (k *Kernel) Release() error {
	if k.released {
		return fmt.Errorf("%w: kernel", device.ErrReleased)
	}
	k.released = true
	if code := clReleaseKernel(k.handle); code != CL_SUCCESS {
		return statusError(device.ErrResourceBusy, "clReleaseKernel", code)
	}
	return nil
}

// Memory is an OpenCL buffer object
type Memory struct {
	handle   clMem
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
	if code := clReleaseMemObject(m.handle); code != CL_SUCCESS {
		return statusError(device.ErrResourceBusy, "clReleaseMemObject", code)
	}
	return nil
}
