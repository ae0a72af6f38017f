package integrators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oscillator(_ float64, y, dydt []float64) {
	dydt[0] = y[1]
	dydt[1] = -y[0]
}

func decay(k float64) RHS {
	return func(_ float64, y, dydt []float64) {
		dydt[0] = -k * y[0]
	}
}

func TestRK4Accuracy(t *testing.T) {
	s := NewSolver(NewRK4())
	require.NoError(t, s.Init(Problem{N: 2, RHS: oscillator}, 0, []float64{1, 0}))
	require.NoError(t, s.IntegrateToEnd(1))

	assert.Equal(t, 1.0, s.Time())
	assert.InDelta(t, math.Cos(1), s.Values()[0], 1e-8)
	assert.InDelta(t, -math.Sin(1), s.Values()[1], 1e-8)
	assert.Equal(t, 100, s.Stats().Steps)
}

func TestEulerDecay(t *testing.T) {
	s := NewSolver(NewEuler())
	require.NoError(t, s.Init(Problem{N: 1, RHS: decay(0.5)}, 0, []float64{10}))
	require.NoError(t, s.IntegrateToEnd(2))
	assert.InDelta(t, 10*math.Exp(-1), s.Values()[0], 2e-2)
}

func TestFixedStepHonoursInitialStep(t *testing.T) {
	s := NewSolver(NewRK4())
	require.NoError(t, s.Init(Problem{N: 1, RHS: decay(1), InitialStep: 0.25}, 0, []float64{1}))
	require.NoError(t, s.IntegrateToEnd(1))
	assert.Equal(t, 4, s.Stats().Steps)
	assert.InDelta(t, math.Exp(-1), s.Values()[0], 1e-3)
}

func TestMaxSteps(t *testing.T) {
	s := NewSolver(NewRK4())
	require.NoError(t, s.Init(Problem{N: 2, RHS: oscillator, MaxSteps: 3}, 0, []float64{1, 0}))
	err := s.IntegrateToEnd(1)
	assert.ErrorIs(t, err, ErrTooManySteps)
	assert.Less(t, s.Time(), 1.0)
}

func TestNonFinite(t *testing.T) {
	rhs := func(t float64, y, dydt []float64) {
		dydt[0] = 1
		if t > 0.5 {
			dydt[0] = math.NaN()
		}
	}
	s := NewSolver(NewRK4())
	require.NoError(t, s.Init(Problem{N: 1, RHS: rhs}, 0, []float64{0}))
	err := s.IntegrateToEnd(1)
	assert.ErrorIs(t, err, ErrNonFinite)
	assert.InDelta(t, 0.5, s.Time(), 0.011)
}
