package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	testCases := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", TypeAll, false},
		{"ALL", TypeAll, false},
		{"cpu", TypeCPU, false},
		{" accelerator ", TypeAccelerator, false},
		{"gpu", TypeAccelerator, false},
		{"fpga", TypeAll, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseType(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTypeMatches(t *testing.T) {
	assert.True(t, TypeAll.Matches(TypeCPU))
	assert.True(t, TypeAll.Matches(TypeAccelerator))
	assert.True(t, TypeCPU.Matches(TypeCPU))
	assert.False(t, TypeCPU.Matches(TypeAccelerator))
	assert.False(t, TypeAccelerator.Matches(TypeCPU))
}

func TestTypeText(t *testing.T) {
	var typ Type
	require.NoError(t, typ.UnmarshalText([]byte("accelerator")))
	assert.Equal(t, TypeAccelerator, typ)

	b, err := typ.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "accelerator", string(b))

	assert.Error(t, typ.UnmarshalText([]byte("quantum")))
}

func TestAccessMode(t *testing.T) {
	assert.True(t, ReadOnly.CanRead())
	assert.False(t, ReadOnly.CanWrite())
	assert.False(t, WriteOnly.CanRead())
	assert.True(t, WriteOnly.CanWrite())
	assert.True(t, ReadWrite.CanRead())
	assert.True(t, ReadWrite.CanWrite())
}

func TestCompileError(t *testing.T) {
	var err error = &CompileError{Log: "line 1: error: expected ';'"}
	wrapped := fmt.Errorf("build: %w", err)

	assert.True(t, errors.Is(wrapped, ErrCompile))

	var ce *CompileError
	require.True(t, errors.As(wrapped, &ce))
	assert.Contains(t, ce.Log, "expected ';'")
	assert.Contains(t, wrapped.Error(), "expected ';'")
}

type stubRuntime struct{}

func (stubRuntime) Name() string                   { return "stub" }
func (stubRuntime) Dialect() Dialect               { return DialectOpenCL }
func (stubRuntime) Platforms() ([]Platform, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	Register("stub-test", func() (Runtime, error) { return stubRuntime{}, nil })

	rt, err := Open("stub-test")
	require.NoError(t, err)
	assert.Equal(t, "stub", rt.Name())
	assert.Contains(t, Backends(), "stub-test")

	_, err = Open("does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
