package vectorstore

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	DefaultAbsTolerance = 1e-5
	DefaultRelTolerance = 1e-5
)

// ErrMismatch reports a result that differs from the expected vector
var ErrMismatch = errors.New("solution mismatch")

// MismatchError describes the first element outside tolerance
type MismatchError struct {
	Index    int
	Expected float32
	Got      float32
	// MaxError is the largest absolute difference over the whole vector
	MaxError float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v at index %d: expected %g, got %g (max abs error %g)",
		ErrMismatch, e.Index, e.Expected, e.Got, e.MaxError)
}

func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }

// Solution is the outcome of a successful check
type Solution struct {
	N        int
	MaxError float64
}

// CheckSolution compares got against expected with the default tolerances
func CheckSolution(expected, got []float32) (Solution, error) {
	return CheckSolutionTol(expected, got, DefaultAbsTolerance, DefaultRelTolerance)
}

// CheckSolutionTol compares element by element; a pair matches when it is
// within absTol or within relTol relative to the larger magnitude
func CheckSolutionTol(expected, got []float32, absTol, relTol float64) (Solution, error) {
	if len(expected) != len(got) {
		return Solution{}, fmt.Errorf("%w: expected %d elements, got %d", ErrMismatch, len(expected), len(got))
	}
	e64 := widen(expected)
	g64 := widen(got)

	var maxErr float64
	if len(e64) > 0 {
		maxErr = floats.Distance(e64, g64, math.Inf(1))
	}
	for i := range e64 {
		if !scalar.EqualWithinAbsOrRel(e64[i], g64[i], absTol, relTol) {
			return Solution{}, &MismatchError{Index: i, Expected: expected[i], Got: got[i], MaxError: maxErr}
		}
	}
	return Solution{N: len(expected), MaxError: maxErr}, nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
