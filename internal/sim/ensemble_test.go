package sim

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsembleRunsIndependently(t *testing.T) {
	m := buildModel(t, decayDoc)
	rates := []float64{0.5, 1, 2}
	var runs []Settings
	for _, k := range rates {
		s := sensitivitySettings(false)
		s.SensParameters = []string{"k"}
		s.Overrides = map[string]float64{"k": k}
		runs = append(runs, s)
	}

	e := NewEnsemble(m, runs...)
	e.Limit = 2
	out, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, m.HasJacobian())
	assert.True(t, m.HasSensitivity())

	for i, k := range rates {
		require.NoError(t, out[i].Err)
		x, err := out[i].Result.Column("X")
		require.NoError(t, err)
		assert.InDelta(t, 10*math.Exp(-2*k), x[len(x)-1], 1e-6)
		final := out[i].Result.Sensitivities[len(x)-1]
		assert.InDelta(t, -2*10*math.Exp(-2*k), final[0][0], 1e-5)
		assert.NotNil(t, out[i].Store)
	}
}

func TestEnsembleRejectsMixedSensitivity(t *testing.T) {
	a, b := sensitivitySettings(false), sensitivitySettings(false)
	a.SensParameters = []string{"k"}
	_, err := NewEnsemble(buildModel(t, decayDoc), a, b).Run(context.Background())
	assert.ErrorIs(t, err, ErrSettings)
}

func TestEnsembleReportsFailures(t *testing.T) {
	good, bad := settings(1, 10), settings(1, 10)
	bad.Overrides = map[string]float64{"ghost": 1}
	out, err := NewEnsemble(buildModel(t, decayDoc), good, bad).Run(context.Background())
	assert.ErrorIs(t, err, ErrUnknownVariable)
	require.Len(t, out, 2)
	assert.ErrorIs(t, out[1].Err, ErrUnknownVariable)
	assert.True(t, out[1].Store.HasErrors())
}

func TestEnsembleContinueOnError(t *testing.T) {
	good, bad := settings(1, 10), settings(1, 10)
	bad.Overrides = map[string]float64{"ghost": 1}
	e := NewEnsemble(buildModel(t, decayDoc), bad, good, good)
	e.Limit = 1
	e.ContinueOnError = true
	out, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, out[0].Err, ErrUnknownVariable)
	for _, o := range out[1:] {
		require.NoError(t, o.Err)
		assert.Len(t, o.Result.Times, 11)
	}
}

func TestEnsembleMetrics(t *testing.T) {
	e := NewEnsemble(buildModel(t, decayDoc), settings(1, 4), settings(1, 4))
	e.Metrics = func() []Metric { return []Metric{&countMetric{}} }
	out, err := e.Run(context.Background())
	require.NoError(t, err)
	for _, o := range out {
		assert.Equal(t, 5.0, o.Result.Metrics["rows"])
	}
}
