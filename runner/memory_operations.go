package runner

import (
	"fmt"

	"github.com/notargets/vadd/device"
)

// Allocate creates a pooled device buffer. The buffer is owned by the
// runner and released by Free.
func (kr *Runner) Allocate(name string, bytes int64, mode device.AccessMode) (device.Memory, error) {
	if _, exists := kr.PooledMemory[name]; exists {
		return nil, InvalidInputError("buffer %s already allocated", name)
	}
	mem, err := kr.Context.Malloc(bytes, mode)
	if err != nil {
		return nil, newError(StepAllocate, KindAllocation, fmt.Errorf("buffer %s (%d bytes): %w", name, bytes, err))
	}
	kr.PooledMemory[name] = mem
	kr.bufferOrder = append(kr.bufferOrder, name)
	kr.logger.Debug("buffer allocated", "buffer", name, "bytes", bytes, "mode", mode.String())
	return mem, nil
}

// Upload copies host into the named buffer and blocks until complete.
// Write-only buffers are never uploaded to.
func (kr *Runner) Upload(name string, host []float32) error {
	mem, ok := kr.PooledMemory[name]
	if !ok {
		return InvalidInputError("buffer %s not allocated", name)
	}
	if !mem.Mode().CanRead() {
		return newError(StepUpload, KindTransfer,
			fmt.Errorf("%w: buffer %s is %s", device.ErrTransfer, name, mem.Mode()))
	}
	if err := kr.Queue.Write(mem, host); err != nil {
		return newError(StepUpload, KindTransfer, fmt.Errorf("buffer %s: %w", name, err))
	}
	kr.logger.Debug("buffer uploaded", "buffer", name, "bytes", len(host)*4)
	return nil
}

// Download copies the named buffer into host and blocks until complete
func (kr *Runner) Download(name string, host []float32) error {
	mem, ok := kr.PooledMemory[name]
	if !ok {
		return InvalidInputError("buffer %s not allocated", name)
	}
	if err := kr.Queue.Read(mem, host); err != nil {
		return newError(StepDownload, KindTransfer, fmt.Errorf("buffer %s: %w", name, err))
	}
	kr.logger.Debug("buffer downloaded", "buffer", name, "bytes", len(host)*4)
	return nil
}

// CopyToDevice uploads a binding's host slice to its device buffer
func (kr *Runner) CopyToDevice(name string) error {
	binding, err := kr.requireBinding(name)
	if err != nil {
		return err
	}
	return kr.Upload(name, binding.HostBinding)
}

// CopyFromDevice downloads a binding's device buffer into its host slice
func (kr *Runner) CopyFromDevice(name string) error {
	binding, err := kr.requireBinding(name)
	if err != nil {
		return err
	}
	return kr.Download(name, binding.HostBinding)
}

// executeCopyActions performs the copies requested by each usage, uploads
// before downloads
func (kr *Runner) executeCopyActions(usages []ParameterUsage) error {
	for _, u := range usages {
		if u.NeedsCopyTo() {
			if err := kr.CopyToDevice(u.Binding.Name); err != nil {
				return err
			}
		}
	}
	for _, u := range usages {
		if u.NeedsCopyBack() {
			if err := kr.CopyFromDevice(u.Binding.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
