package sim

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sensitivitySettings(adjoint bool) Settings {
	s := settings(2, 20)
	s.Sensitivity = true
	s.Adjoint = adjoint
	s.RelTol = 1e-10
	return s
}

func TestForwardSensitivity(t *testing.T) {
	inst := run(t, buildModel(t, decayDoc), sensitivitySettings(false))

	dk, err := inst.SensitivityOf("X", "k")
	require.NoError(t, err)
	assert.InDelta(t, -2*10*math.Exp(-1), dk, 1e-6)

	dcell, err := inst.SensitivityOf("X", "cell")
	require.NoError(t, err)
	assert.InDelta(t, 0.5*2*10*math.Exp(-1), dcell, 1e-6)

	v, err := inst.Sensitivity(0, 1)
	require.NoError(t, err)
	assert.Equal(t, dk, v)
	assert.Equal(t, []string{"cell", "k"}, inst.Result().SensNames)
	require.Len(t, inst.Result().Sensitivities, 21)
	assert.Equal(t, 0.0, inst.Result().Sensitivities[0][0][1])

	_, err = inst.SensitivityOf("X", "ghost")
	assert.ErrorIs(t, err, ErrUnknownVariable)
	_, err = inst.Sensitivity(3, 0)
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestSensitivityDisabled(t *testing.T) {
	inst := run(t, buildModel(t, decayDoc), settings(1, 1))
	_, err := inst.Sensitivity(0, 0)
	assert.ErrorIs(t, err, ErrNoSensitivity)
	_, err = inst.SensitivityOf("X", "k")
	assert.ErrorIs(t, err, ErrNoSensitivity)
	assert.ErrorIs(t, inst.ResetAdjointPhase(), ErrAdjointPhase)
}

func TestAdjointMatchesForward(t *testing.T) {
	m := buildModel(t, decayDoc)
	forward := run(t, m, sensitivitySettings(false))

	inst := run(t, m, sensitivitySettings(true))
	_, err := inst.AdjointSensitivities()
	assert.ErrorIs(t, err, ErrAdjointPhase)

	require.NoError(t, inst.ResetAdjointPhase())
	assert.Equal(t, Backward, inst.Phase())
	assert.Equal(t, Ready, inst.State())
	require.NoError(t, inst.Integrate(context.Background()))
	assert.Equal(t, Completed, inst.State())
	assert.Equal(t, 0.0, inst.Time())
	assert.InDeltaSlice(t, []float64{math.Exp(-1)}, inst.Adjoint(), 1e-7)

	got, err := inst.AdjointSensitivities()
	require.NoError(t, err)
	for j := range got {
		want, err := forward.Sensitivity(0, j)
		require.NoError(t, err)
		assert.InDelta(t, want, got[j], 1e-5, forward.Result().SensNames[j])
	}
}

func TestAdjointIncludesInitialSensitivity(t *testing.T) {
	doc := decayDoc + `
initialAssignments:
  - symbol: X
    math: 20 * k
`
	m := buildModel(t, doc)
	s := sensitivitySettings(true)
	s.SensParameters = []string{"k"}
	inst := run(t, m, s)

	// X0 = 20k, so dX(T)/dk = e^{-kT} (20 - T X0) vanishes at k = 0.5, T = 2
	dk, err := inst.Sensitivity(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, dk, 1e-6)

	require.NoError(t, inst.ResetAdjointPhase())
	require.NoError(t, inst.Integrate(context.Background()))
	got, err := inst.AdjointSensitivities()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0, got[0], 1e-5)
}

func TestAdjointWeights(t *testing.T) {
	s := sensitivitySettings(true)
	s.AdjointWeights = map[string]float64{"X": 2}
	inst := run(t, buildModel(t, decayDoc), s)
	require.NoError(t, inst.ResetAdjointPhase())
	require.NoError(t, inst.Integrate(context.Background()))
	got, err := inst.AdjointSensitivities()
	require.NoError(t, err)
	assert.InDelta(t, -4*10*math.Exp(-1), got[1], 1e-4)

	require.NoError(t, inst.Reset())
	assert.Equal(t, Forward, inst.Phase())
	assert.Nil(t, inst.Adjoint())

	s.AdjointWeights = map[string]float64{"k": 1}
	require.NoError(t, inst.Set(s))
	require.NoError(t, inst.Integrate(context.Background()))
	assert.ErrorIs(t, inst.ResetAdjointPhase(), ErrUnknownVariable)
}

func TestAdjointNeedsCompletedRun(t *testing.T) {
	inst, err := New(buildModel(t, decayDoc), sensitivitySettings(true), nil)
	require.NoError(t, err)
	require.True(t, inst.IntegrateOneStep())
	assert.ErrorIs(t, inst.ResetAdjointPhase(), ErrAdjointPhase)
}

func TestTrajectoryHermite(t *testing.T) {
	var tr trajectory
	// y = t^3 is reproduced exactly by one cubic segment
	tr.add(0, []float64{0}, []float64{0})
	tr.add(1, []float64{1}, []float64{3})
	out := make([]float64, 1)
	tr.at(0.5, out)
	assert.InDelta(t, 0.125, out[0], 1e-15)
	tr.at(-1, out)
	assert.Equal(t, 0.0, out[0])
	tr.at(2, out)
	assert.Equal(t, 1.0, out[0])
}
