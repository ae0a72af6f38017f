package network

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rnsim/internal/expr"
)

func TestLoadDecay(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "decay.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "decay", m.ID)
	require.Len(t, m.Compartments, 1)
	assert.Equal(t, 1.0, m.Compartments[0].Size)
	assert.True(t, m.Compartments[0].Constant)

	x, ok := m.FindSpecies("X")
	require.True(t, ok)
	require.NotNil(t, x.InitialConcentration)
	assert.Equal(t, 10.0, *x.InitialConcentration)
	assert.Nil(t, x.InitialAmount)

	k, ok := m.FindParameter("k")
	require.True(t, ok)
	assert.True(t, k.Constant)

	require.Len(t, m.Reactions, 1)
	r := m.Reactions[0]
	assert.Equal(t, []SpeciesRef{{Species: "X", Stoichiometry: 1}}, r.Reactants)
	require.NotNil(t, r.Law)
	assert.Equal(t, "k * X", expr.String(r.Law.Math))
}

func TestLoadFull(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "full.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 2.0, m.Compartments[0].Size)
	r := m.Reactions[0]
	assert.Equal(t, 2.0, r.Reactants[0].Stoichiometry)
	assert.Equal(t, []string{"E"}, r.Modifiers)
	require.Len(t, r.Law.Parameters, 1)
	assert.Equal(t, "scale", r.Law.Parameters[0].ID)

	total, ok := m.FindParameter("total")
	require.True(t, ok)
	assert.False(t, total.Constant)

	rule, ok := m.RuleFor("total")
	require.True(t, ok)
	assert.Equal(t, AssignmentRule, rule.Kind)

	f, ok := m.FindFunction("mm")
	require.True(t, ok)
	assert.Equal(t, []string{"s", "v", "km"}, f.Args)
	assert.Equal(t, "v * s / (km + s)", expr.String(f.Body))

	require.Len(t, m.Events, 1)
	ev := m.Events[0]
	require.NotNil(t, ev.Delay)
	assert.Equal(t, "0.5", expr.String(ev.Delay))
	assert.Equal(t, "P > 1", expr.String(ev.Trigger))
	assert.Equal(t, "S + 1", expr.String(ev.Assignments[0].Math))

	require.Len(t, m.InitialAssignments, 1)
	assert.Equal(t, "Km", m.InitialAssignments[0].Symbol)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", "", ErrInvalidDocument},
		{"unknown field", "id: x\nbogus: 1\n", ErrInvalidDocument},
		{"bad formula", "id: x\ncompartments: [{id: c}]\nparameters: [{id: k}]\nrules: [{kind: assignment, variable: k, math: '1 +'}]\n", expr.ErrSyntax},
		{"bad rule kind", "id: x\nrules: [{kind: differential, variable: k, math: '1'}]\n", ErrInvalidDocument},
		{"duplicate id", "compartments: [{id: c}]\nparameters: [{id: c}]\n", ErrDuplicateID},
		{"unknown compartment", "species: [{id: S, compartment: nowhere}]\n", ErrInvalidDocument},
		{"unknown species", "compartments: [{id: c}]\nreactions: [{id: r, reactants: [Q], kineticLaw: {math: '1'}}]\n", ErrInvalidDocument},
		{"two rules", "compartments: [{id: c}]\nparameters: [{id: k, constant: false}]\nrules: [{variable: k, math: '1'}, {kind: rate, variable: k, math: '2'}]\n", ErrInvalidDocument},
		{"unknown event target", "compartments: [{id: c}]\nevents: [{trigger: 'time > 1', assignments: [{variable: y, math: '1'}]}]\n", ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	m := &Model{
		Species: []Species{
			{ID: "A", Compartment: "missing"},
			{ID: "A", Compartment: "missing"},
		},
	}
	err := m.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "species[0]", fe.Field)
}
