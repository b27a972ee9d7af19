package vectorstore

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSolution(t *testing.T) {
	t.Run("Exact", func(t *testing.T) {
		sol, err := CheckSolution([]float32{11, 22, 33}, []float32{11, 22, 33})
		require.NoError(t, err)
		assert.Equal(t, 3, sol.N)
		assert.Zero(t, sol.MaxError)
	})

	t.Run("WithinTolerance", func(t *testing.T) {
		sol, err := CheckSolution([]float32{1e6, 1e-7}, []float32{1e6 + 1, 2e-7})
		require.NoError(t, err)
		assert.InDelta(t, 1, sol.MaxError, 1e-9)
	})

	t.Run("Empty", func(t *testing.T) {
		sol, err := CheckSolution(nil, []float32{})
		require.NoError(t, err)
		assert.Zero(t, sol.N)
	})

	t.Run("Mismatch", func(t *testing.T) {
		_, err := CheckSolution([]float32{1, 2, 3, 4}, []float32{1, 2, 3.5, 9})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMismatch)

		var mm *MismatchError
		require.True(t, errors.As(err, &mm))
		assert.Equal(t, 2, mm.Index)
		assert.Equal(t, float32(3), mm.Expected)
		assert.Equal(t, float32(3.5), mm.Got)
		assert.InDelta(t, 5, mm.MaxError, 1e-9)
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := CheckSolution([]float32{1, 2}, []float32{1})
		assert.ErrorIs(t, err, ErrMismatch)
	})

	t.Run("NaN", func(t *testing.T) {
		nan := float32(math.NaN())
		_, err := CheckSolution([]float32{1}, []float32{nan})
		assert.ErrorIs(t, err, ErrMismatch)
	})
}

func TestCheckSolutionTol(t *testing.T) {
	_, err := CheckSolutionTol([]float32{100}, []float32{101}, 0.5, 0)
	assert.ErrorIs(t, err, ErrMismatch)
	_, err = CheckSolutionTol([]float32{100}, []float32{101}, 0.5, 0.02)
	assert.NoError(t, err)
}
