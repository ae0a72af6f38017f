package optim

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/network"
	"github.com/san-kum/rnsim/internal/odemodel"
	"github.com/san-kum/rnsim/internal/reduce"
	"github.com/san-kum/rnsim/internal/sim"
)

const decayDoc = `
id: decay
compartments:
  - id: cell
species:
  - id: X
    compartment: cell
    initialConcentration: 10
parameters:
  - id: k
    value: 0.5
reactions:
  - id: degradation
    reactants: [X]
    kineticLaw:
      math: k * X
`

func decayModel(t *testing.T) *odemodel.Model {
	t.Helper()
	store := diag.NewStore()
	doc, err := network.Parse([]byte(decayDoc))
	require.NoError(t, err)
	rm, err := reduce.Reduce(doc, store)
	require.NoError(t, err)
	m, err := odemodel.Build(rm, store)
	require.NoError(t, err)
	return m
}

func baseSettings() sim.Settings {
	s := sim.DefaultSettings()
	s.EndTime, s.Steps = 1, 10
	s.RelTol = 1e-9
	return s
}

func TestPoints(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{1, 2}, {10, 20, 30}})
	pts := g.Points()
	require.Len(t, pts, 6)
	assert.Equal(t, map[string]float64{"a": 1, "b": 10}, pts[0])
	assert.Equal(t, map[string]float64{"a": 1, "b": 20}, pts[1])
	assert.Equal(t, map[string]float64{"a": 2, "b": 30}, pts[5])
}

func TestSearchFindsTarget(t *testing.T) {
	g := NewGridSearch([]string{"k"}, [][]float64{{0.1, 0.25, 0.5, 1, 2}})
	g.Limit = 2
	best, points, err := g.Search(context.Background(), decayModel(t), baseSettings(), TargetObjective("X", 10*math.Exp(-0.25)))
	require.NoError(t, err)
	assert.Len(t, points, 5)
	assert.Equal(t, 0.25, best.Params["k"])
	assert.InDelta(t, 0, best.Value, 1e-10)
}

func TestSearchTwoDimensional(t *testing.T) {
	g := NewGridSearch([]string{"k", "X"}, [][]float64{{0.5, 1}, {5, 10, 20}})
	best, points, err := g.Search(context.Background(), decayModel(t), baseSettings(), TargetObjective("X", 20*math.Exp(-1)))
	require.NoError(t, err)
	assert.Len(t, points, 6)
	assert.Equal(t, map[string]float64{"k": 1, "X": 20}, best.Params)
}

func TestSearchMetricObjective(t *testing.T) {
	g := NewGridSearch([]string{"k"}, [][]float64{{0.5, 1}})
	_, points, err := g.Search(context.Background(), decayModel(t), baseSettings(), MetricObjective("missing"))
	assert.ErrorIs(t, err, ErrNoCandidate)
	for _, p := range points {
		assert.Error(t, p.Err)
	}
}

func TestSearchUnknownParameter(t *testing.T) {
	g := NewGridSearch([]string{"ghost"}, [][]float64{{1}})
	_, _, err := g.Search(context.Background(), decayModel(t), baseSettings(), TargetObjective("X", 0))
	assert.ErrorIs(t, err, sim.ErrUnknownVariable)
}
