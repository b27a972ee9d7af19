//go:build darwin || linux

package opencl

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

func libraryCandidates() []string {
	if runtime.GOOS == "darwin" {
		return []string{"/System/Library/Frameworks/OpenCL.framework/OpenCL"}
	}
	return []string{"libOpenCL.so.1", "libOpenCL.so"}
}

func loadLibrary() (uintptr, error) {
	var lastErr error
	for _, name := range libraryCandidates() {
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return lib, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("%w: %v", ErrLibraryNotFound, lastErr)
}

// registerFunctions resolves every entry point up front so that a partial
// driver fails at load time rather than mid-dispatch
func registerFunctions(lib uintptr) error {
	symbols := []struct {
		fptr any
		name string
	}{
		{&clGetPlatformIDs, "clGetPlatformIDs"},
		{&clGetPlatformInfo, "clGetPlatformInfo"},
		{&clGetDeviceIDs, "clGetDeviceIDs"},
		{&clGetDeviceInfo, "clGetDeviceInfo"},
		{&clCreateContext, "clCreateContext"},
		{&clReleaseContext, "clReleaseContext"},
		{&clCreateCommandQueue, "clCreateCommandQueue"},
		{&clReleaseCommandQueue, "clReleaseCommandQueue"},
		{&clCreateProgramWithSource, "clCreateProgramWithSource"},
		{&clBuildProgram, "clBuildProgram"},
		{&clGetProgramBuildInfo, "clGetProgramBuildInfo"},
		{&clReleaseProgram, "clReleaseProgram"},
		{&clCreateKernel, "clCreateKernel"},
		{&clSetKernelArg, "clSetKernelArg"},
		{&clReleaseKernel, "clReleaseKernel"},
		{&clCreateBuffer, "clCreateBuffer"},
		{&clReleaseMemObject, "clReleaseMemObject"},
		{&clEnqueueWriteBuffer, "clEnqueueWriteBuffer"},
		{&clEnqueueReadBuffer, "clEnqueueReadBuffer"},
		{&clEnqueueNDRangeKernel, "clEnqueueNDRangeKernel"},
		{&clFinish, "clFinish"},
	}
	for _, s := range symbols {
		sym, err := purego.Dlsym(lib, s.name)
		if err != nil {
			return fmt.Errorf("%w: missing symbol %s: %v", ErrLibraryNotFound, s.name, err)
		}
		purego.RegisterFunc(s.fptr, sym)
	}
	return nil
}
