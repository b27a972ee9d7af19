package runner

import (
	"errors"
	"testing"

	"github.com/notargets/vadd/device"
	"github.com/notargets/vadd/device/host"
	"github.com/notargets/vadd/runner/builder"
	"github.com/notargets/vadd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostConfig(w int) builder.Config {
	cfg := builder.DefaultConfig()
	cfg.Backend = "host"
	cfg.WorkGroupSize = w
	return cfg
}

// newHostRuntime builds a single-device host runtime and returns the device
// so tests can inspect its live object counts
func newHostRuntime(t *testing.T, spec host.DeviceSpec) (*host.Runtime, *host.Device) {
	t.Helper()
	rt := host.New(host.PlatformSpec{Name: "test", Devices: []host.DeviceSpec{spec}})
	platforms, err := rt.Platforms()
	require.NoError(t, err)
	devices, err := platforms[0].Devices(device.TypeAll)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	return rt, devices[0].(*host.Device)
}

// newTestRunner creates a runner on a fresh host device. Cleanup frees it and
// checks that nothing was leaked on the device.
func newTestRunner(t *testing.T, spec host.DeviceSpec, n, w int) (*Runner, *host.Device) {
	t.Helper()
	rt, dev := newHostRuntime(t, spec)
	h, err := Resolve(rt, device.TypeAll)
	require.NoError(t, err)
	kr, err := NewRunner(h, hostConfig(w), n)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, kr.Free())
		assert.Zero(t, dev.Stats().Live(), "device objects leaked")
		assert.Zero(t, dev.Stats().MemoryInUse)
	})
	return kr, dev
}

func TestRunner_Creation(t *testing.T) {
	rt := utils.CreateTestRuntime("host")
	h, err := Resolve(rt, device.TypeAll)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	kr, err := NewRunner(h, hostConfig(16), 5)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	defer kr.Free()

	if kr.Context == nil || kr.Queue == nil {
		t.Fatal("runner has no context or queue")
	}
	if kr.Plan.Global != 16 || kr.Plan.Local != 16 || kr.Plan.Groups != 1 {
		t.Errorf("unexpected plan %+v", kr.Plan)
	}
	if kr.Handle.Dialect() != device.DialectOpenCL {
		t.Errorf("expected OpenCL dialect, got %v", kr.Handle.Dialect())
	}
}

func TestRunner_CreationErrors(t *testing.T) {
	t.Run("NonPositiveLength", func(t *testing.T) {
		rt, _ := newHostRuntime(t, host.DeviceSpec{})
		h, err := Resolve(rt, device.TypeAll)
		require.NoError(t, err)
		for _, n := range []int{0, -3} {
			_, err := NewRunner(h, hostConfig(16), n)
			assert.Equal(t, KindInvalidInput, KindOf(err), "n=%d", n)
		}
	})

	t.Run("WorkGroupTooLarge", func(t *testing.T) {
		rt, dev := newHostRuntime(t, host.DeviceSpec{MaxWorkGroupSize: 32})
		h, err := Resolve(rt, device.TypeAll)
		require.NoError(t, err)
		_, err = NewRunner(h, hostConfig(64), 100)
		require.Error(t, err)
		assert.Equal(t, KindLaunch, KindOf(err))
		assert.Equal(t, StepValidate, StepOf(err))
		assert.Zero(t, dev.Stats().Live())
	})

	t.Run("ExclusiveDeviceBusy", func(t *testing.T) {
		rt, dev := newHostRuntime(t, host.DeviceSpec{Exclusive: true})
		held, err := dev.NewContext()
		require.NoError(t, err)
		defer held.Release()

		h, err := Resolve(rt, device.TypeAll)
		require.NoError(t, err)
		_, err = NewRunner(h, hostConfig(16), 5)
		assert.Equal(t, KindContext, KindOf(err))
		assert.Equal(t, StepContext, StepOf(err))
		assert.ErrorIs(t, err, device.ErrContextCreation)
		assert.Equal(t, 1, dev.Stats().Contexts)
	})

	t.Run("NoQueueReleasesContext", func(t *testing.T) {
		rt, dev := newHostRuntime(t, host.DeviceSpec{MaxQueues: -1})
		h, err := Resolve(rt, device.TypeAll)
		require.NoError(t, err)
		_, err = NewRunner(h, hostConfig(16), 5)
		assert.Equal(t, KindContext, KindOf(err))
		assert.Equal(t, StepQueue, StepOf(err))
		assert.ErrorIs(t, err, device.ErrQueueCreation)
		assert.Zero(t, dev.Stats().Live())
	})
}

func TestRunner_BuildKernel(t *testing.T) {
	t.Run("Preamble", func(t *testing.T) {
		kr, _ := newTestRunner(t, host.DeviceSpec{}, 5, 16)
		_, err := kr.BuildAddKernel()
		require.NoError(t, err)
		assert.Contains(t, kr.KernelPreamble, "#define N_ELEMENTS 5")
		assert.Contains(t, kr.KernelPreamble, "#define WORK_GROUP_SIZE 16")
		assert.NotNil(t, kr.GetKernel("addVector"))
	})

	t.Run("CompileError", func(t *testing.T) {
		kr, _ := newTestRunner(t, host.DeviceSpec{}, 5, 16)
		_, err := kr.BuildKernel("__kernel void addVector(__global const float* a {", "addVector")
		require.Error(t, err)
		assert.Equal(t, KindCompile, KindOf(err))
		assert.Equal(t, StepCompile, StepOf(err))

		var cerr *device.CompileError
		require.True(t, errors.As(err, &cerr))
		assert.NotEmpty(t, cerr.Log)
	})

	t.Run("EntryPointNotFound", func(t *testing.T) {
		kr, dev := newTestRunner(t, host.DeviceSpec{}, 5, 16)
		src, err := kr.GenerateKernel(device.DialectOpenCL)
		require.NoError(t, err)
		_, err = kr.BuildKernel(src, "addVectors")
		assert.Equal(t, KindCompile, KindOf(err))
		assert.ErrorIs(t, err, device.ErrEntryPointNotFound)
		// The program stays pooled until Free
		assert.Equal(t, 1, dev.Stats().Programs)
	})

	t.Run("Duplicate", func(t *testing.T) {
		kr, _ := newTestRunner(t, host.DeviceSpec{}, 5, 16)
		_, err := kr.BuildAddKernel()
		require.NoError(t, err)
		_, err = kr.BuildAddKernel()
		assert.Equal(t, KindCompile, KindOf(err))
	})

	t.Run("AfterFree", func(t *testing.T) {
		kr, _ := newTestRunner(t, host.DeviceSpec{}, 5, 16)
		require.NoError(t, kr.Free())
		_, err := kr.BuildAddKernel()
		assert.ErrorIs(t, err, device.ErrReleased)
	})
}

func TestRunner_Free(t *testing.T) {
	kr, dev := newTestRunner(t, host.DeviceSpec{}, 8, 4)
	a := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	c := make([]float32, 8)
	require.NoError(t, kr.DefineBindings(
		builder.Input("a").Bind(a).CopyTo(),
		builder.Input("b").Bind(a).CopyTo(),
		builder.Output("c").Bind(c).CopyBack(),
	))
	_, err := kr.BuildAddKernel()
	require.NoError(t, err)
	require.NoError(t, kr.AllocateDevice())

	stats := dev.Stats()
	assert.Equal(t, 1, stats.Contexts)
	assert.Equal(t, 1, stats.Queues)
	assert.Equal(t, 1, stats.Programs)
	assert.Equal(t, 1, stats.Kernels)
	assert.Equal(t, 3, stats.Buffers)
	assert.Equal(t, int64(3*8*4), stats.MemoryInUse)

	require.NoError(t, kr.Free())
	assert.Zero(t, dev.Stats().Live())
	assert.Empty(t, kr.PooledMemory)
	assert.Empty(t, kr.Kernels)

	// A second Free releases nothing twice
	assert.NoError(t, kr.Free())
}

func TestRunner_FreeNil(t *testing.T) {
	var kr *Runner
	assert.NoError(t, kr.Free())
}
