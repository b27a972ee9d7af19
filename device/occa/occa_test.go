package occa

import (
	"testing"

	"github.com/notargets/vadd/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addSource = `
#define N_ELEMENTS 5
#define WORK_GROUP_SIZE 16
#define NUM_GROUPS 1

@kernel void addVector(const float* a, const float* b, float* c) {
	for (int group = 0; group < NUM_GROUPS; ++group; @outer) {
		for (int item = 0; item < WORK_GROUP_SIZE; ++item; @inner) {
			const int i = group * WORK_GROUP_SIZE + item;
			if (i < N_ELEMENTS) {
				c[i] = a[i] + b[i];
			}
		}
	}
}`

// createTestDevice prefers parallel modes and skips when OCCA has none
func createTestDevice(t *testing.T) device.Device {
	t.Helper()
	rt := New(
		Mode{Name: "OpenMP", Props: `{"mode": "OpenMP"}`, Type: device.TypeCPU},
		Mode{Name: "CUDA", Props: `{"mode": "CUDA", "device_id": 0}`, Type: device.TypeAccelerator},
		Mode{Name: "Serial", Props: `{"mode": "Serial"}`, Type: device.TypeCPU},
	)
	platforms, err := rt.Platforms()
	require.NoError(t, err)
	if len(platforms) == 0 {
		t.Skip("no OCCA mode available")
	}
	devices, err := platforms[0].Devices(device.TypeAll)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	t.Logf("Created %s Device", devices[0].Info().Name)
	return devices[0]
}

func TestBuildProgram_NoKernel(t *testing.T) {
	ctx := &Context{}
	_, err := ctx.BuildProgram("int x;")
	assert.ErrorIs(t, err, device.ErrCompile)
}

func TestProgram_EntryPoints(t *testing.T) {
	ctx := &Context{}
	prog, err := ctx.BuildProgram(addSource)
	require.NoError(t, err)

	p := prog.(*Program)
	assert.True(t, p.entries["addVector"])

	_, err = prog.Kernel("vectorAdd")
	assert.ErrorIs(t, err, device.ErrEntryPointNotFound)
}

func TestPlatform_Filter(t *testing.T) {
	p := &Platform{mode: Mode{Name: "Serial", Type: device.TypeCPU}, reported: "Serial"}

	devices, err := p.Devices(device.TypeAccelerator)
	require.NoError(t, err)
	assert.Empty(t, devices)

	devices, err = p.Devices(device.TypeCPU)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, device.TypeCPU, devices[0].Info().Type)
	assert.Equal(t, "OCCA Serial", p.Info().Name)
}

func TestOCCA_AddVector(t *testing.T) {
	dev := createTestDevice(t)

	ctx, err := dev.NewContext()
	require.NoError(t, err)
	defer ctx.Release()
	queue, err := ctx.NewQueue()
	require.NoError(t, err)
	defer queue.Release()

	prog, err := ctx.BuildProgram(addSource)
	require.NoError(t, err)
	defer prog.Release()
	kern, err := prog.Kernel("addVector")
	require.NoError(t, err)
	defer kern.Release()

	var bufs []device.Memory
	for _, mode := range []device.AccessMode{device.ReadOnly, device.ReadOnly, device.WriteOnly} {
		mem, err := ctx.Malloc(20, mode)
		require.NoError(t, err)
		defer mem.Release()
		bufs = append(bufs, mem)
	}
	require.NoError(t, queue.Write(bufs[0], []float32{1, 2, 3, 4, 5}))
	require.NoError(t, queue.Write(bufs[1], []float32{10, 20, 30, 40, 50}))
	for i, b := range bufs {
		require.NoError(t, kern.SetArg(i, b))
	}

	assert.ErrorIs(t, queue.Enqueue(kern, 20, 16), device.ErrLaunch)
	require.NoError(t, queue.Enqueue(kern, 16, 16))
	require.NoError(t, queue.Finish())

	out := make([]float32, 5)
	require.NoError(t, queue.Read(bufs[2], out))
	assert.Equal(t, []float32{11, 22, 33, 44, 55}, out)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(`{"mode": "CUDA", "device_id": 1}`)
	require.NoError(t, err)
	assert.Equal(t, "CUDA", m.Name)
	assert.Equal(t, device.TypeAccelerator, m.Type)
	assert.Equal(t, `{"mode": "CUDA", "device_id": 1}`, m.Props)

	m, err = ParseMode(`{"mode": "OpenMP"}`)
	require.NoError(t, err)
	assert.Equal(t, device.TypeCPU, m.Type)

	_, err = ParseMode(`{"device_id": 0}`)
	assert.Error(t, err)
	_, err = ParseMode(`mode: Serial`)
	assert.Error(t, err)
}
