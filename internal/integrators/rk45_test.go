package integrators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func energy(y []float64) float64 {
	return 0.5 * (y[0]*y[0] + y[1]*y[1])
}

func TestRK45_EnergyConservation(t *testing.T) {
	s := NewSolver(NewRK45())
	p := Problem{N: 2, RHS: oscillator, RelTol: 1e-10, AbsTol: 1e-12}
	require.NoError(t, s.Init(p, 0, []float64{1, 0}))
	require.NoError(t, s.IntegrateToEnd(10))

	drift := math.Abs(energy(s.Values())-0.5) / 0.5
	assert.Less(t, drift, 1e-7)
	assert.InDelta(t, math.Cos(10), s.Values()[0], 1e-7)
}

func TestRK45_StepNeverPassesTarget(t *testing.T) {
	s := NewSolver(NewRK45())
	require.NoError(t, s.Init(Problem{N: 2, RHS: oscillator}, 0, []float64{1, 0}))

	reached, err := s.Step(0.5)
	require.NoError(t, err)
	assert.LessOrEqual(t, reached, 0.5)
	assert.Greater(t, reached, 0.0)

	for reached < 0.5 {
		reached, err = s.Step(0.5)
		require.NoError(t, err)
	}
	assert.Equal(t, 0.5, s.Time())
}

func TestRK45_AdaptsStepCount(t *testing.T) {
	loose, tight := NewSolver(NewRK45()), NewSolver(NewRK45())
	require.NoError(t, loose.Init(Problem{N: 2, RHS: oscillator, RelTol: 1e-3}, 0, []float64{1, 0}))
	require.NoError(t, tight.Init(Problem{N: 2, RHS: oscillator, RelTol: 1e-10}, 0, []float64{1, 0}))
	require.NoError(t, loose.IntegrateToEnd(5))
	require.NoError(t, tight.IntegrateToEnd(5))
	assert.Less(t, loose.Stats().Steps, tight.Stats().Steps)
}

func TestRK45_Backward(t *testing.T) {
	s := NewSolver(NewRK45())
	p := Problem{N: 1, RHS: decay(0.5), RelTol: 1e-10}
	require.NoError(t, s.Init(p, 2, []float64{10 * math.Exp(-1)}))
	require.NoError(t, s.IntegrateToEnd(0))
	assert.Equal(t, 0.0, s.Time())
	assert.InDelta(t, 10, s.Values()[0], 1e-7)
}

func TestRK45_VsRK4_Accuracy(t *testing.T) {
	rk4, rk45 := NewSolver(NewRK4()), NewSolver(NewRK45())
	require.NoError(t, rk4.Init(Problem{N: 2, RHS: oscillator, InitialStep: 0.1}, 0, []float64{1, 0}))
	require.NoError(t, rk45.Init(Problem{N: 2, RHS: oscillator, RelTol: 1e-10}, 0, []float64{1, 0}))
	require.NoError(t, rk4.IntegrateToEnd(10))
	require.NoError(t, rk45.IntegrateToEnd(10))

	e4 := math.Abs(energy(rk4.Values()) - 0.5)
	e45 := math.Abs(energy(rk45.Values()) - 0.5)
	assert.Less(t, e45, e4)
}
