package runner

import (
	"errors"
	"fmt"

	"github.com/notargets/vadd/device"
	"github.com/notargets/vadd/runner/builder"
	"github.com/notargets/vadd/utils"
)

// DeviceHandle is a resolved device together with the runtime and platform
// it came from
type DeviceHandle struct {
	Runtime  device.Runtime
	Platform device.Platform
	Device   device.Device
}

// Dialect is the kernel language the device compiles
func (h *DeviceHandle) Dialect() device.Dialect { return h.Runtime.Dialect() }

func (h *DeviceHandle) String() string {
	info := h.Device.Info()
	return fmt.Sprintf("%s/%s (%s)", h.Platform.Info().Name, info.Name, info.Type)
}

// Runner owns every device object of one dispatch: the context, its queue,
// compiled programs and kernels, and the pooled buffers. Free releases them
// in reverse order of acquisition.
type Runner struct {
	*builder.Builder
	Handle       *DeviceHandle
	Context      device.Context
	Queue        device.Queue
	Programs     map[string]device.Program
	Kernels      map[string]device.Kernel
	PooledMemory map[string]device.Memory

	Bindings      map[string]*DeviceBinding
	KernelConfigs map[string]*KernelConfig
	IsAllocated   bool

	// Acquisition order, used to release in reverse
	bufferOrder  []string
	kernelOrder  []string
	programOrder []string

	logger *utils.Logger
	timer  *utils.Timer
	freed  bool
}

type options struct {
	logger *utils.Logger
	timer  *utils.Timer
}

// Option configures a Runner or a dispatch
type Option func(*options)

// WithLogger sets the logger
func WithLogger(l *utils.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTimer records step timings into t
func WithTimer(t *utils.Timer) Option {
	return func(o *options) {
		o.timer = t
	}
}

func newOptions(opts []Option) options {
	o := options{logger: utils.NoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timed runs fn inside a timer interval when a timer is configured
func (kr *Runner) timed(kind, message string, fn func() error) error {
	if kr.timer == nil {
		return fn()
	}
	return kr.timer.Time(kind, message, fn)
}

// NewRunner creates the execution context and its in-order queue for a
// dispatch of n elements. If the queue cannot be created the context is
// released before returning.
func NewRunner(h *DeviceHandle, cfg builder.Config, n int, opts ...Option) (*Runner, error) {
	if n <= 0 {
		return nil, InvalidInputError("vector length must be positive, got %d", n)
	}
	bld, err := builder.NewBuilder(cfg, n)
	if err != nil {
		return nil, InvalidInputError("invalid configuration: %v", err)
	}
	if limit := h.Device.Info().MaxWorkGroupSize; limit > 0 && cfg.WorkGroupSize > limit {
		return nil, &Error{Kind: KindLaunch, Step: StepValidate,
			Err: fmt.Errorf("%w: work-group size %d exceeds device maximum %d",
				device.ErrLaunch, cfg.WorkGroupSize, limit)}
	}

	kr := &Runner{
		Builder:       bld,
		Handle:        h,
		Programs:      make(map[string]device.Program),
		Kernels:       make(map[string]device.Kernel),
		PooledMemory:  make(map[string]device.Memory),
		Bindings:      make(map[string]*DeviceBinding),
		KernelConfigs: make(map[string]*KernelConfig),
	}
	o := newOptions(opts)
	kr.logger, kr.timer = o.logger, o.timer

	ctx, err := h.Device.NewContext()
	if err != nil {
		return nil, newError(StepContext, KindContext, err)
	}
	queue, err := ctx.NewQueue()
	if err != nil {
		primary := newError(StepQueue, KindContext, err)
		if rerr := ctx.Release(); rerr != nil {
			return nil, errors.Join(primary, newError(StepRelease, KindRelease, rerr))
		}
		return nil, primary
	}
	kr.Context = ctx
	kr.Queue = queue
	kr.logger.Debug("execution context created", "device", h.String(), "n", n,
		"global", kr.Plan.Global, "local", kr.Plan.Local)
	return kr, nil
}

// BuildKernel compiles the preamble plus kernelSource and registers the
// named entry point
func (kr *Runner) BuildKernel(kernelSource, kernelName string) (device.Kernel, error) {
	if kr.freed {
		return nil, newError(StepCompile, KindCompile, fmt.Errorf("%w: runner", device.ErrReleased))
	}
	kr.GeneratePreamble()

	// Combine preamble with kernel source
	fullSource := kr.KernelPreamble + "\n" + kernelSource
	return kr.buildSource(fullSource, kernelName)
}

// BuildAddKernel generates the elementwise sum kernel for the device's
// dialect and builds it under the configured entry point
func (kr *Runner) BuildAddKernel() (device.Kernel, error) {
	src, err := kr.GenerateKernel(kr.Handle.Dialect())
	if err != nil {
		return nil, InvalidInputError("kernel generation: %v", err)
	}
	return kr.BuildKernel(src, kr.EntryPoint)
}

func (kr *Runner) buildSource(source, kernelName string) (device.Kernel, error) {
	if _, dup := kr.Kernels[kernelName]; dup {
		return nil, newError(StepCompile, KindCompile, fmt.Errorf("kernel %s already built", kernelName))
	}
	var prog device.Program
	err := kr.timed("Compile", "Building "+kernelName, func() (err error) {
		prog, err = kr.Context.BuildProgram(source)
		return err
	})
	if err != nil {
		return nil, newError(StepCompile, KindCompile, err)
	}
	kr.Programs[kernelName] = prog
	kr.programOrder = append(kr.programOrder, kernelName)

	kernel, err := prog.Kernel(kernelName)
	if err != nil {
		return nil, newError(StepCompile, KindCompile, err)
	}

	// Register kernel
	kr.Kernels[kernelName] = kernel
	kr.kernelOrder = append(kr.kernelOrder, kernelName)
	kr.logger.Debug("kernel built", "kernel", kernelName, "source_bytes", len(source))
	return kernel, nil
}

// GetKernel returns a built kernel
func (kr *Runner) GetKernel(name string) device.Kernel {
	return kr.Kernels[name]
}

// GetMemory returns a pooled buffer
func (kr *Runner) GetMemory(name string) device.Memory {
	return kr.PooledMemory[name]
}

// Free waits for the queue to drain, then releases buffers, kernels and
// programs in reverse acquisition order, then the queue and the context.
// Every object is released exactly once; calling Free again is a no-op.
func (kr *Runner) Free() error {
	if kr == nil || kr.freed {
		return nil
	}
	kr.freed = true

	var errs []error
	release := func(what string, fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, newError(StepRelease, KindRelease, fmt.Errorf("%s: %w", what, err)))
		}
	}

	if kr.Queue != nil {
		// Faults from a failed launch were already reported by the wait
		_ = kr.Queue.Finish()
	}
	for i := len(kr.bufferOrder) - 1; i >= 0; i-- {
		name := kr.bufferOrder[i]
		release("buffer "+name, kr.PooledMemory[name].Release)
		delete(kr.PooledMemory, name)
	}
	for i := len(kr.kernelOrder) - 1; i >= 0; i-- {
		name := kr.kernelOrder[i]
		release("kernel "+name, kr.Kernels[name].Release)
		delete(kr.Kernels, name)
	}
	for i := len(kr.programOrder) - 1; i >= 0; i-- {
		name := kr.programOrder[i]
		release("program "+name, kr.Programs[name].Release)
		delete(kr.Programs, name)
	}
	kr.bufferOrder, kr.kernelOrder, kr.programOrder = nil, nil, nil

	if kr.Queue != nil {
		release("queue", kr.Queue.Release)
	}
	if kr.Context != nil {
		release("context", kr.Context.Release)
	}
	kr.logger.WithStep(string(StepRelease)).Debug("device resources released", "errors", len(errs))
	return errors.Join(errs...)
}
