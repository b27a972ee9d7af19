package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/notargets/vadd/device"
	"github.com/notargets/vadd/runner/builder"
)

// AddVectors computes a + b elementwise on a device of rt. Every device
// object is created and released within the call; on error the output is
// nil and the error carries the failing kind and step.
func AddVectors(ctx context.Context, rt device.Runtime, a, b []float32, cfg builder.Config, opts ...Option) (out []float32, err error) {
	o := newOptions(opts)
	log := o.logger.WithDispatch(uuid.NewString())
	started := time.Now()

	defer func() {
		if err != nil {
			out = nil
			log.ErrorContext(ctx, "dispatch failed", "kind", KindOf(err).String(), "step", string(StepOf(err)), "error", err)
		}
	}()

	if len(a) != len(b) {
		return nil, InvalidInputError("input lengths differ: %d and %d", len(a), len(b))
	}
	n := len(a)
	if n == 0 {
		return nil, InvalidInputError("input vectors are empty")
	}
	if err = cfg.Validate(); err != nil {
		return nil, InvalidInputError("invalid configuration: %v", err)
	}
	log.DebugContext(ctx, "input loaded", "length", n, "bytes", n*4)

	step := func(name Step, fn func() error) error {
		t0 := time.Now()
		err := fn()
		log.LogStep(ctx, string(name), time.Since(t0), err)
		return err
	}

	var h *DeviceHandle
	var kr *Runner
	setup := func() (err error) {
		if h, err = Resolve(rt, cfg.DeviceType); err != nil {
			return err
		}
		info := h.Device.Info()
		log = log.WithDevice(info.Name, info.Type.String())
		log.DebugContext(ctx, "device resolved", "runtime", rt.Name(), "platform", h.Platform.Info().Name)
		kr, err = NewRunner(h, cfg, n, WithLogger(log), WithTimer(o.timer))
		return err
	}
	if o.timer != nil {
		err = o.timer.Time("GPU", "Device setup", setup)
	} else {
		err = setup()
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if ferr := kr.Free(); ferr != nil {
			err = errors.Join(err, ferr)
		}
	}()

	c := make([]float32, n)
	if err = kr.DefineBindings(
		builder.Input("a").Bind(a).CopyTo(),
		builder.Input("b").Bind(b).CopyTo(),
		builder.Output("c").Bind(c).CopyBack(),
	); err != nil {
		return nil, err
	}
	if err = step(StepCompile, func() error {
		_, err := kr.BuildAddKernel()
		return err
	}); err != nil {
		return nil, err
	}
	if err = step(StepAllocate, kr.AllocateDevice); err != nil {
		return nil, err
	}
	if _, err = kr.ConfigureKernel(cfg.EntryPoint, kr.Param("a"), kr.Param("b"), kr.Param("c")); err != nil {
		return nil, err
	}
	if err = step(StepLaunch, func() error {
		return kr.ExecuteKernel(cfg.EntryPoint)
	}); err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "dispatch completed", "n", n, "global", kr.Plan.Global, "local", kr.Plan.Local,
		"elapsed", time.Since(started))
	return c, nil
}
