package runner

import (
	"testing"

	"github.com/notargets/vadd/device"
	"github.com/notargets/vadd/device/host"
	"github.com/notargets/vadd/runner/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleCopyMethods(t *testing.T) {
	kr, _ := newTestRunner(t, host.DeviceSpec{}, 4, 4)

	data := []float32{1.5, 2.5, 3.5, 4.5}
	require.NoError(t, kr.DefineBindings(
		builder.InOut("x").Bind(data).Copy(),
	))
	require.NoError(t, kr.AllocateDevice())

	if err := kr.CopyToDevice("x"); err != nil {
		t.Fatalf("CopyToDevice failed: %v", err)
	}

	// Overwrite host data, then restore it from the device
	for i := range data {
		data[i] = 0
	}
	if err := kr.CopyFromDevice("x"); err != nil {
		t.Fatalf("CopyFromDevice failed: %v", err)
	}
	assert.Equal(t, []float32{1.5, 2.5, 3.5, 4.5}, data)
}

func TestManualMemoryOperations(t *testing.T) {
	kr, dev := newTestRunner(t, host.DeviceSpec{}, 4, 4)

	mem, err := kr.Allocate("scratch", 16, device.ReadWrite)
	require.NoError(t, err)
	assert.Equal(t, int64(16), mem.Size())
	assert.Equal(t, mem, kr.GetMemory("scratch"))
	assert.Equal(t, 1, dev.Stats().Buffers)

	require.NoError(t, kr.Upload("scratch", []float32{4, 3, 2, 1}))
	out := make([]float32, 4)
	require.NoError(t, kr.Download("scratch", out))
	assert.Equal(t, []float32{4, 3, 2, 1}, out)

	_, err = kr.Allocate("scratch", 16, device.ReadWrite)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestCopyErrors(t *testing.T) {
	t.Run("WriteOnlyUpload", func(t *testing.T) {
		kr, _ := newTestRunner(t, host.DeviceSpec{}, 4, 4)
		_, err := kr.Allocate("out", 16, device.WriteOnly)
		require.NoError(t, err)
		err = kr.Upload("out", make([]float32, 4))
		assert.Equal(t, KindTransfer, KindOf(err))
		assert.Equal(t, StepUpload, StepOf(err))
		assert.ErrorIs(t, err, device.ErrTransfer)
	})

	t.Run("Overflow", func(t *testing.T) {
		kr, _ := newTestRunner(t, host.DeviceSpec{}, 4, 4)
		_, err := kr.Allocate("small", 8, device.ReadWrite)
		require.NoError(t, err)

		err = kr.Upload("small", make([]float32, 4))
		assert.Equal(t, KindTransfer, KindOf(err))
		err = kr.Download("small", make([]float32, 4))
		assert.Equal(t, KindTransfer, KindOf(err))
		assert.Equal(t, StepDownload, StepOf(err))
	})

	t.Run("Unallocated", func(t *testing.T) {
		kr, _ := newTestRunner(t, host.DeviceSpec{}, 4, 4)
		assert.Equal(t, KindInvalidInput, KindOf(kr.Upload("x", nil)))
		assert.Equal(t, KindInvalidInput, KindOf(kr.Download("x", nil)))
		assert.Equal(t, KindInvalidInput, KindOf(kr.CopyToDevice("x")))
	})
}

func TestExecuteCopyActions(t *testing.T) {
	kr, _ := newTestRunner(t, host.DeviceSpec{}, 3, 4)

	src := []float32{7, 8, 9}
	dst := make([]float32, 3)
	require.NoError(t, kr.DefineBindings(
		builder.InOut("src").Bind(src),
		builder.InOut("dst").Bind(dst),
	))
	require.NoError(t, kr.AllocateDevice())

	// Upload src, then read the same device buffer back through dst's host slice
	require.NoError(t, kr.executeCopyActions([]ParameterUsage{
		{Binding: kr.GetBinding("src"), Actions: CopyTo},
	}))
	require.NoError(t, kr.Download("src", dst))
	assert.Equal(t, src, dst)
}
