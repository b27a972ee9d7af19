package runner

import (
	"fmt"

	"github.com/notargets/vadd/device"
)

// Launch binds the named buffers to kernel argument slots in order, submits
// the kernel over the dispatch plan and blocks until the device is done.
// Faults raised while the kernel ran are reported as execution errors.
func (kr *Runner) Launch(kernelName string, bufferNames ...string) error {
	kernel, exists := kr.Kernels[kernelName]
	if !exists {
		return InvalidInputError("kernel %s not compiled - use BuildKernel first", kernelName)
	}

	for slot, name := range bufferNames {
		mem, ok := kr.PooledMemory[name]
		if !ok {
			return InvalidInputError("buffer %s not allocated", name)
		}
		// Every slot spans the whole index space
		if want := int64(kr.Plan.N) * 4; mem.Size() != want {
			return newError(StepBind, KindArgumentBinding, fmt.Errorf("%w: slot %d buffer %s is %d bytes, kernel needs %d",
				device.ErrArgumentBinding, slot, name, mem.Size(), want))
		}
		if err := kernel.SetArg(slot, mem); err != nil {
			return newError(StepBind, KindArgumentBinding, err)
		}
	}

	plan := kr.Plan
	kr.logger.Debug("launching kernel", "kernel", kernelName,
		"global", plan.Global, "local", plan.Local, "groups", plan.Groups, "n", plan.N)

	return kr.timed("Compute", "Performing "+kernelName, func() error {
		if err := kr.Queue.Enqueue(kernel, plan.Global, plan.Local); err != nil {
			return newError(StepLaunch, KindLaunch, err)
		}
		if err := kr.Queue.Finish(); err != nil {
			return newError(StepWait, KindExecution, fmt.Errorf("kernel %s: %w", kernelName, err))
		}
		return nil
	})
}

// ExecuteKernel executes a kernel using its configuration: uploads, launch
// and wait, then downloads
func (kr *Runner) ExecuteKernel(name string) error {
	config, exists := kr.KernelConfigs[name]
	if !exists {
		return InvalidInputError("kernel %s not configured - use ConfigureKernel first", name)
	}
	if _, exists := kr.Kernels[name]; !exists {
		return InvalidInputError("kernel %s not compiled - use BuildKernel first", name)
	}

	// Perform pre-kernel memory operations (CopyTo only)
	preCopy := make([]ParameterUsage, 0, len(config.Parameters))
	for _, param := range config.Parameters {
		if param.HasAction(CopyTo) {
			preCopy = append(preCopy, ParameterUsage{Binding: param.Binding, Actions: CopyTo})
		}
	}
	if err := kr.timed("Copy", "Copying input memory to the device", func() error {
		return kr.executeCopyActions(preCopy)
	}); err != nil {
		return err
	}

	if err := kr.Launch(name, kr.argumentNames()...); err != nil {
		return err
	}

	// Perform post-kernel memory operations (CopyBack only)
	postCopy := make([]ParameterUsage, 0, len(config.Parameters))
	for _, param := range config.Parameters {
		if param.HasAction(CopyBack) {
			postCopy = append(postCopy, ParameterUsage{Binding: param.Binding, Actions: CopyBack})
		}
	}
	return kr.timed("Copy", "Copying output memory to the host", func() error {
		return kr.executeCopyActions(postCopy)
	})
}
