package reduce

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/expr"
	"github.com/san-kum/rnsim/internal/network"
)

func conc(v float64) *float64 { return &v }

func law(src string, locals ...network.Parameter) *network.KineticLaw {
	return &network.KineticLaw{Math: expr.MustParse(src), Parameters: locals}
}

func ref(species string) network.SpeciesRef {
	return network.SpeciesRef{Species: species, Stoichiometry: 1}
}

func species(ids ...string) []network.Species {
	out := make([]network.Species, len(ids))
	for i, id := range ids {
		out[i] = network.Species{ID: id, Compartment: "cell", InitialConcentration: conc(1)}
	}
	return out
}

func rates(m *Model) map[string]string {
	out := map[string]string{}
	for _, eq := range m.Rates {
		out[eq.Variable] = expr.String(eq.Math)
	}
	return out
}

func TestReduceDecay(t *testing.T) {
	doc, err := network.Load(filepath.Join("..", "network", "testdata", "decay.yaml"))
	require.NoError(t, err)

	store := diag.NewStore()
	m, err := Reduce(doc, store)
	require.NoError(t, err)
	require.Len(t, m.Rates, 1)
	assert.Equal(t, "X", m.Rates[0].Variable)
	assert.Equal(t, "-(k * X) / cell", expr.String(m.Rates[0].Math))
	assert.Zero(t, store.Len())
}

func TestReduceFull(t *testing.T) {
	doc, err := network.Load(filepath.Join("..", "network", "testdata", "full.yaml"))
	require.NoError(t, err)

	store := diag.NewStore()
	m, err := Reduce(doc, store)
	require.NoError(t, err)

	require.Len(t, m.Rates, 2)
	assert.Equal(t, "S", m.Rates[0].Variable)
	assert.Equal(t, "P", m.Rates[1].Variable)
	assert.Equal(t, "-(2 * E * Vmax * S / (Km + S) * 0.5) / cell", expr.String(m.Rates[0].Math))
	assert.Equal(t, "E * Vmax * S / (Km + S) * 0.5 / cell", expr.String(m.Rates[1].Math))

	_, ok := m.Rate("E")
	assert.False(t, ok, "boundary species keeps its value")

	total, ok := m.Assignment("total")
	require.True(t, ok)
	assert.Equal(t, "S + P", expr.String(total))

	require.Len(t, m.Events, 1)
	assert.Equal(t, 1, store.Count(diag.Warning))
	assert.Len(t, store.Find(diag.CodeEvents), 1)
	assert.False(t, store.HasErrors())

	// the document keeps its own trees
	assert.Equal(t, "E * mm(S, Vmax, Km) * scale", expr.String(doc.Reactions[0].Law.Math))
}

func TestReduceDeterministic(t *testing.T) {
	doc, err := network.Load(filepath.Join("..", "network", "testdata", "full.yaml"))
	require.NoError(t, err)

	first, err := Reduce(doc, nil)
	require.NoError(t, err)
	second, err := Reduce(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, rates(first), rates(second))
	for i := range first.Rates {
		assert.Equal(t, first.Rates[i].Variable, second.Rates[i].Variable)
	}
}

func TestReduceSpecialCases(t *testing.T) {
	sp := species("A", "B", "M", "Bnd", "Q")
	sp[3].BoundaryCondition = true
	sp[4].HasOnlySubstanceUnits = true
	doc := &network.Model{
		ID:           "cases",
		Compartments: []network.Compartment{{ID: "cell", Size: 1, Constant: true}},
		Species:      sp,
		Parameters: []network.Parameter{
			{ID: "k", Value: 1, Constant: true},
			{ID: "p", Value: 0},
		},
		Reactions: []network.Reaction{
			{
				ID:        "catalysed",
				Reactants: []network.SpeciesRef{ref("A"), ref("B")},
				Products:  []network.SpeciesRef{ref("B"), {Species: "Q", Stoichiometry: 3}},
				Modifiers: []string{"M"},
				Law:       law("k * A * B * M", network.Parameter{ID: "k", Value: 3}),
			},
		},
		Rules: []network.Rule{
			{Kind: network.RateRule, Variable: "p", Math: expr.MustParse("Bnd - p")},
		},
	}

	m, err := Reduce(doc, nil)
	require.NoError(t, err)

	order := make([]string, len(m.Rates))
	for i, eq := range m.Rates {
		order[i] = eq.Variable
	}
	assert.Equal(t, []string{"p", "A", "B", "M", "Q"}, order, "rate rules first, then species in document order")

	got := rates(m)
	assert.Equal(t, "Bnd - p", got["p"])
	assert.Equal(t, "-(3 * A * B * M) / cell", got["A"], "local parameter shadows global")
	assert.Equal(t, "(-(3 * A * B * M) + 3 * A * B * M) / cell", got["B"])
	assert.Equal(t, "0", got["M"], "modifier-only species has zero rate")
	assert.Equal(t, "3 * 3 * A * B * M", got["Q"], "amount species is not divided by its compartment")
	_, ok := got["Bnd"]
	assert.False(t, ok)
}

func TestReduceMissingKineticLaw(t *testing.T) {
	doc := &network.Model{
		ID:           "broken",
		Compartments: []network.Compartment{{ID: "cell", Size: 1}},
		Species:      species("A", "B", "C"),
		Reactions: []network.Reaction{
			{ID: "r1", Reactants: []network.SpeciesRef{ref("A")}, Products: []network.SpeciesRef{ref("B")}},
			{ID: "r2", Reactants: []network.SpeciesRef{ref("B")}, Products: []network.SpeciesRef{ref("C")}, Law: law("B")},
		},
	}
	store := diag.NewStore()
	m, err := Reduce(doc, store)
	require.ErrorIs(t, err, ErrReduction)
	require.NotNil(t, m, "best-effort model is still returned")

	assert.Equal(t, map[string]string{"C": "B / cell"}, rates(m))
	assert.Equal(t, 2, store.Count(diag.Error))
	assert.Len(t, store.Find(diag.CodeMissingKineticLaw), 2)
}

func TestReduceAlgebraicRules(t *testing.T) {
	doc := &network.Model{
		ID:           "dae",
		Compartments: []network.Compartment{{ID: "cell", Size: 1}},
		Species:      species("A"),
		Rules:        []network.Rule{{Kind: network.AlgebraicRule, Math: expr.MustParse("A + z - 1")}},
	}
	store := diag.NewStore()
	m, err := Reduce(doc, store)
	require.ErrorIs(t, err, ErrReduction)
	assert.ErrorIs(t, err, ErrAlgebraicRules)
	require.Len(t, m.Algebraic, 1)
	assert.Len(t, store.Find(diag.CodeAlgebraicRules), 1)
}

func TestInlineFunctions(t *testing.T) {
	doc := &network.Model{
		ID:           "inline",
		Compartments: []network.Compartment{{ID: "cell", Size: 1}},
		Species:      species("A"),
		Functions: []network.FunctionDefinition{
			{ID: "outer", Args: []string{"x"}, Body: expr.MustParse("2 * inner(x, x)")},
			{ID: "inner", Args: []string{"a", "b"}, Body: expr.MustParse("a + b")},
		},
		Rules: []network.Rule{
			{Kind: network.RateRule, Variable: "A", Math: expr.MustParse("outer(A) - inner(1, A)")},
		},
		Events: []network.Event{
			{Trigger: expr.MustParse("outer(A) > 4"), Assignments: []network.EventAssignment{{Variable: "A", Math: expr.MustParse("inner(0, 0)")}}},
		},
	}
	m, err := Reduce(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, "2 * (A + A) - (1 + A)", rates(m)["A"])
	assert.Equal(t, "2 * (A + A) > 4", expr.String(m.Events[0].Trigger))
	assert.Equal(t, "0 + 0", expr.String(m.Events[0].Assignments[0].Math))
}

func TestInlineFailures(t *testing.T) {
	cyclic := &network.Model{
		ID: "cyclic",
		Functions: []network.FunctionDefinition{
			{ID: "f", Args: []string{"x"}, Body: expr.MustParse("g(x) + 1")},
			{ID: "g", Args: []string{"x"}, Body: expr.MustParse("f(x) * 2")},
		},
		Parameters: []network.Parameter{{ID: "p"}},
		Rules:      []network.Rule{{Kind: network.RateRule, Variable: "p", Math: expr.MustParse("f(p)")}},
	}
	store := diag.NewStore()
	_, err := Reduce(cyclic, store)
	assert.ErrorIs(t, err, ErrFunctionCycle)
	assert.Len(t, store.Find(diag.CodeFunctionInline), 1)

	arity := &network.Model{
		ID:         "arity",
		Functions:  []network.FunctionDefinition{{ID: "f", Args: []string{"x", "y"}, Body: expr.MustParse("x * y")}},
		Parameters: []network.Parameter{{ID: "p"}},
		Rules:      []network.Rule{{Kind: network.RateRule, Variable: "p", Math: expr.MustParse("f(p)")}},
	}
	_, err = Reduce(arity, nil)
	assert.ErrorIs(t, err, ErrFunctionArity)
}
