package builder

import (
	"math"
	"strings"
	"testing"

	"github.com/notargets/vadd/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	testCases := []struct {
		name   string
		n, w   int
		global int
		groups int
	}{
		{"Scenario", 5, 16, 16, 1},
		{"SingleElement", 1, 16, 16, 1},
		{"Divisible", 32, 16, 32, 2},
		{"OneOver", 33, 16, 48, 3},
		{"UnitGroup", 7, 1, 7, 7},
		{"Large", 1 << 20, 256, 1 << 20, 4096},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Plan(tc.n, tc.w)
			require.NoError(t, err)
			assert.Equal(t, tc.global, plan.Global)
			assert.Equal(t, tc.groups, plan.Groups)
			assert.Equal(t, tc.w, plan.Local)
			assert.Equal(t, tc.n, plan.N)
		})
	}

	t.Run("Properties", func(t *testing.T) {
		for n := 1; n <= 200; n++ {
			for _, w := range []int{1, 3, 16, 64} {
				plan, err := Plan(n, w)
				require.NoError(t, err)
				assert.Zero(t, plan.Global%plan.Local)
				assert.GreaterOrEqual(t, plan.Global, n)
				assert.Less(t, plan.Padding(), w)
			}
		}

		// Group sizes near the int limit
		for _, tc := range []struct{ n, w int }{
			{5, math.MaxInt}, {5, math.MaxInt - 2}, {1, math.MaxInt}, {math.MaxInt, 1}, {math.MaxInt, math.MaxInt},
		} {
			plan, err := Plan(tc.n, tc.w)
			require.NoError(t, err)
			assert.Zero(t, plan.Global%plan.Local)
			assert.GreaterOrEqual(t, plan.Global, tc.n)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		_, err := Plan(math.MaxInt, math.MaxInt/2+1)
		assert.Error(t, err)
		_, err = Plan(math.MaxInt-1, 2)
		assert.NoError(t, err)
		_, err = Plan(math.MaxInt, 2)
		assert.Error(t, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := Plan(0, 16)
		assert.Error(t, err)
		_, err = Plan(5, 0)
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"NoBackend", func(c *Config) { c.Backend = "" }},
		{"ZeroWorkGroup", func(c *Config) { c.WorkGroupSize = 0 }},
		{"BadEntry", func(c *Config) { c.EntryPoint = "add vector" }},
		{"BadType", func(c *Config) { c.DeviceType = device.Type(9) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBuilder_KernelSource(t *testing.T) {
	kb, err := NewBuilder(DefaultConfig(), 5)
	require.NoError(t, err)

	t.Run("OpenCL", func(t *testing.T) {
		src, err := kb.KernelSource(device.DialectOpenCL)
		require.NoError(t, err)
		assert.Contains(t, src, "#define N_ELEMENTS 5\n")
		assert.Contains(t, src, "#define WORK_GROUP_SIZE 16\n")
		assert.Contains(t, src, "#define NUM_GROUPS 1\n")
		assert.Contains(t, src, "__kernel void addVector(")
		assert.Contains(t, src, "__global const float* a,")
		assert.Contains(t, src, "__global float* c\n")
		assert.Contains(t, src, "if (i < N_ELEMENTS)")
		assert.Contains(t, src, "c[i] = a[i] + b[i];")
		assert.Equal(t, kb.KernelPreamble, src[:len(kb.KernelPreamble)])
	})

	t.Run("OKL", func(t *testing.T) {
		src, err := kb.KernelSource(device.DialectOKL)
		require.NoError(t, err)
		assert.Contains(t, src, "@kernel void addVector(")
		assert.Contains(t, src, "@outer")
		assert.Contains(t, src, "@inner")
		assert.NotContains(t, src, "__global")
		assert.Contains(t, src, "if (i < N_ELEMENTS)")
	})

	t.Run("UnknownDialect", func(t *testing.T) {
		_, err := kb.KernelSource(device.Dialect(0))
		assert.Error(t, err)
	})
}

func TestBuilder_SetParams(t *testing.T) {
	x := []float32{1, 2, 3}
	y := []float32{4, 5, 6}
	z := make([]float32, 3)

	kb, err := NewBuilder(DefaultConfig(), 3)
	require.NoError(t, err)

	require.NoError(t, kb.SetParams(
		Input("x").Bind(x).CopyTo(),
		Input("y").Bind(y).CopyTo(),
		Output("z").Bind(z).CopyBack(),
	))
	src, err := kb.KernelSource(device.DialectOpenCL)
	require.NoError(t, err)
	assert.Contains(t, src, "z[i] = x[i] + y[i];")
	assert.Equal(t, device.ReadOnly, kb.Params[0].Mode())
	assert.Equal(t, device.WriteOnly, kb.Params[2].Mode())
	assert.Equal(t, int64(12), kb.Params[2].Bytes())

	testCases := []struct {
		name   string
		params []*ParamBuilder
		errMsg string
	}{
		{"Duplicate", []*ParamBuilder{Input("x").Bind(x), Input("x").Bind(y)}, "duplicate"},
		{"Length", []*ParamBuilder{Input("x").Bind([]float32{1})}, "dispatch has 3"},
		{"Unbound", []*ParamBuilder{Input("x")}, "needs binding"},
		{"OutputUpload", []*ParamBuilder{Output("z").Bind(z).CopyTo()}, "cannot be copied to the device"},
		{"InputDownload", []*ParamBuilder{Input("x").Bind(x).CopyBack()}, "cannot be copied back"},
		{"BadName", []*ParamBuilder{Input("x-1").Bind(x)}, "not a valid identifier"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := kb.SetParams(tc.params...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestBuilder_KernelShape(t *testing.T) {
	kb, err := NewBuilder(DefaultConfig(), 2)
	require.NoError(t, err)
	v := []float32{1, 2}

	kb.Params = nil
	require.NoError(t, kb.SetParams(Output("c").Bind(v), Input("a").Bind(v)))
	_, err = kb.GenerateKernel(device.DialectOpenCL)
	assert.ErrorContains(t, err, "must be the last parameter")

	require.NoError(t, kb.SetParams(Input("a").Bind(v), Input("b").Bind(v)))
	_, err = kb.GenerateKernel(device.DialectOpenCL)
	assert.ErrorContains(t, err, "no output")

	require.NoError(t, kb.SetParams(Input("a").Bind(v), Input("b").Bind(v), Input("d").Bind(v), Output("c").Bind(v)))
	src, err := kb.GenerateKernel(device.DialectOKL)
	require.NoError(t, err)
	assert.True(t, strings.Contains(src, "c[i] = a[i] + b[i] + d[i];"))
}
