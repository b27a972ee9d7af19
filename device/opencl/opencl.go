// Package opencl implements the device runtime on top of a system OpenCL
// driver. The library is loaded at run time through purego, so the package
// builds without cgo and reports ErrLibraryNotFound when no driver is
// installed.
//
// Supported Platforms:
//   - Linux: libOpenCL.so.1 (ICD loader)
//   - macOS: OpenCL.framework
package opencl

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/notargets/vadd/device"
)

// OpenCL constants
const (
	CL_SUCCESS = 0

	CL_DEVICE_TYPE_CPU         = uint64(1 << 1)
	CL_DEVICE_TYPE_GPU         = uint64(1 << 2)
	CL_DEVICE_TYPE_ACCELERATOR = uint64(1 << 3)
	CL_DEVICE_TYPE_ALL         = uint64(0xFFFFFFFF)

	CL_PLATFORM_VERSION = 0x0901
	CL_PLATFORM_NAME    = 0x0902
	CL_PLATFORM_VENDOR  = 0x0903

	CL_DEVICE_TYPE                = 0x1000
	CL_DEVICE_MAX_WORK_GROUP_SIZE = 0x1004
	CL_DEVICE_MAX_MEM_ALLOC_SIZE  = 0x1010
	CL_DEVICE_GLOBAL_MEM_SIZE     = 0x101F
	CL_DEVICE_NAME                = 0x102B
	CL_DEVICE_VENDOR              = 0x102C

	CL_PROGRAM_BUILD_LOG = 0x1183

	CL_MEM_READ_WRITE = uint64(1 << 0)
	CL_MEM_WRITE_ONLY = uint64(1 << 1)
	CL_MEM_READ_ONLY  = uint64(1 << 2)

	CL_TRUE = 1
)

type (
	clPlatformID   uintptr
	clDeviceID     uintptr
	clContext      uintptr
	clCommandQueue uintptr
	clProgram      uintptr
	clKernel       uintptr
	clMem          uintptr
)

// OpenCL function pointers (set by platform-specific code)
var (
	openclLib uintptr
	openclMu  sync.Mutex
	openclErr error

	clGetPlatformIDs          func(num uint32, platforms *clPlatformID, numPlatforms *uint32) int32
	clGetPlatformInfo         func(platform clPlatformID, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
	clGetDeviceIDs            func(platform clPlatformID, deviceType uint64, num uint32, devices *clDeviceID, numDevices *uint32) int32
	clGetDeviceInfo           func(dev clDeviceID, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
	clCreateContext           func(props uintptr, num uint32, devices *clDeviceID, notify uintptr, userData uintptr, errcode *int32) clContext
	clReleaseContext          func(ctx clContext) int32
	clCreateCommandQueue      func(ctx clContext, dev clDeviceID, props uint64, errcode *int32) clCommandQueue
	clReleaseCommandQueue     func(queue clCommandQueue) int32
	clCreateProgramWithSource func(ctx clContext, count uint32, strings **byte, lengths *uintptr, errcode *int32) clProgram
	clBuildProgram            func(program clProgram, num uint32, devices *clDeviceID, options string, notify uintptr, userData uintptr) int32
	clGetProgramBuildInfo     func(program clProgram, dev clDeviceID, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
	clReleaseProgram          func(program clProgram) int32
	clCreateKernel            func(program clProgram, name string, errcode *int32) clKernel
	clSetKernelArg            func(kernel clKernel, index uint32, size uintptr, value unsafe.Pointer) int32
	clReleaseKernel           func(kernel clKernel) int32
	clCreateBuffer            func(ctx clContext, flags uint64, size uintptr, host unsafe.Pointer, errcode *int32) clMem
	clReleaseMemObject        func(mem clMem) int32
	clEnqueueWriteBuffer      func(queue clCommandQueue, mem clMem, blocking uint32, offset uintptr, size uintptr, ptr unsafe.Pointer, numEvents uint32, waitList uintptr, event uintptr) int32
	clEnqueueReadBuffer       func(queue clCommandQueue, mem clMem, blocking uint32, offset uintptr, size uintptr, ptr unsafe.Pointer, numEvents uint32, waitList uintptr, event uintptr) int32
	clEnqueueNDRangeKernel    func(queue clCommandQueue, kernel clKernel, workDim uint32, offset *uintptr, global *uintptr, local *uintptr, numEvents uint32, waitList uintptr, event uintptr) int32
	clFinish                  func(queue clCommandQueue) int32
)

// ErrLibraryNotFound is returned when no OpenCL driver can be loaded
var ErrLibraryNotFound = errors.New("opencl: OpenCL is not available (library not found)")

func init() {
	device.Register("opencl", func() (device.Runtime, error) {
		return New(), nil
	})
}

// initOpenCL loads the driver once
func initOpenCL() error {
	openclMu.Lock()
	defer openclMu.Unlock()

	if openclLib != 0 {
		return nil
	}
	if openclErr != nil {
		return openclErr
	}

	lib, err := loadLibrary()
	if err != nil {
		openclErr = err
		return err
	}
	if err := registerFunctions(lib); err != nil {
		openclErr = err
		return err
	}
	openclLib = lib
	return nil
}

// IsAvailable reports whether the OpenCL driver could be loaded
func IsAvailable() bool {
	return initOpenCL() == nil
}

// Runtime is the OpenCL compute runtime
type Runtime struct{}

func New() *Runtime { return &Runtime{} }

func (rt *Runtime) Name() string { return "opencl" }

func (rt *Runtime) Dialect() device.Dialect { return device.DialectOpenCL }

// Platforms enumerates the installed OpenCL platforms. A missing driver is
// reported as ErrNoPlatform.
func (rt *Runtime) Platforms() ([]device.Platform, error) {
	if err := initOpenCL(); err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrNoPlatform, err)
	}

	var count uint32
	if code := clGetPlatformIDs(0, nil, &count); code != CL_SUCCESS {
		// CL_PLATFORM_NOT_FOUND_KHR is the ICD loader's "no platforms"
		if code == -1001 {
			return nil, nil
		}
		return nil, statusError(device.ErrNoPlatform, "clGetPlatformIDs", code)
	}
	if count == 0 {
		return nil, nil
	}
	ids := make([]clPlatformID, count)
	if code := clGetPlatformIDs(count, &ids[0], nil); code != CL_SUCCESS {
		return nil, statusError(device.ErrNoPlatform, "clGetPlatformIDs", code)
	}

	platforms := make([]device.Platform, 0, count)
	for _, id := range ids {
		platforms = append(platforms, &Platform{
			id: id,
			info: device.PlatformInfo{
				Name:    platformString(id, CL_PLATFORM_NAME),
				Vendor:  platformString(id, CL_PLATFORM_VENDOR),
				Version: platformString(id, CL_PLATFORM_VERSION),
			},
		})
	}
	return platforms, nil
}

func platformString(id clPlatformID, param uint32) string {
	var size uintptr
	if clGetPlatformInfo(id, param, 0, nil, &size) != CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, size)
	if clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil) != CL_SUCCESS {
		return ""
	}
	return cString(buf)
}

func cString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
