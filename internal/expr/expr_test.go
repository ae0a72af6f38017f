package expr

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexMatchesNamedEvaluation(t *testing.T) {
	names := []string{"A", "B", "k1", "k2", "Km"}
	n := MustParse("k1 * A / (Km + A) - exp(-k2 * time) + sqrt(B) * piecewise(1, A > B, 2)")

	indexed, err := Index(n, NewMapTable(names))
	require.NoError(t, err)
	assert.True(t, InBounds(indexed, len(names)))

	samples := [][]float64{
		{1, 2, 0.5, 0.1, 3},
		{4, 0.25, 2, 1, 0.5},
		{0, 9, 1, 0, 1},
	}
	for _, values := range samples {
		byName := map[string]float64{}
		for i, name := range names {
			byName[name] = values[i]
		}
		for _, tm := range []float64{0, 1.5, 10} {
			assert.InDelta(t, EvalNamed(n, byName, tm), Eval(indexed, values, tm), 1e-12)
		}
	}

	// the input tree is untouched
	assert.True(t, Contains(n, func(x *Node) bool { return x.Kind == KindVar && x.Index < 0 }))
}

func TestIndexUnresolved(t *testing.T) {
	n := MustParse("A + C * D + C")
	_, err := Index(n, NewMapTable([]string{"A"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedSymbol))

	var ue *UnresolvedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, []string{"C", "D"}, ue.Names)
}

func TestEvalUnresolvedPanics(t *testing.T) {
	assert.Panics(t, func() { Eval(Var("x"), nil, 0) })
	assert.Panics(t, func() { Eval(Call("nosuch", Const(1)), nil, 0) })
}

func TestEvalCatalogue(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"log(2, 8)", 3},
		{"log(exponentiale)", 1},
		{"ln(1)", 0},
		{"root(3, 27)", 3},
		{"factorial(5)", 120},
		{"min(3, 1, 2)", 1},
		{"max(3, 1, 2)", 3},
		{"piecewise(1, 0, 2)", 2},
		{"piecewise(1, 0)", math.NaN()},
		{"sign(-4)", -1},
		{"sec(0)", 1},
		{"2^10", 1024},
		{"xor(1, 1, 1)", 1},
		{"not 0", 1},
		{"3 >= 3 and 2 != 2", 0},
		{"delay(5, 1)", 5},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := Eval(MustParse(tt.src), nil, 0)
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(got))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCheckCalls(t *testing.T) {
	assert.NoError(t, CheckCalls(MustParse("exp(x) + max(a, b, c)")))
	assert.ErrorIs(t, CheckCalls(MustParse("foo(x)")), ErrUnknownFunction)
	assert.ErrorIs(t, CheckCalls(MustParse("exp(x, y)")), ErrArity)
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x + 0", "x"},
		{"1 * x", "x"},
		{"0 * x", "0"},
		{"x ^ 1", "x"},
		{"x ^ 0", "1"},
		{"0 / x", "0"},
		{"x / 1", "x"},
		{"-(-x)", "x"},
		{"-1 * x", "-x"},
		{"2 + 3 * x + 4", "3 * x + 6"},
		{"b + a", "b + a"},
		{"(a + b) + c", "a + b + c"},
		{"x * (y * 2)", "2 * x * y"},
		{"exp(0) * k", "k"},
		{"piecewise(1, true, x)", "1"},
		{"piecewise(a, false, b, c > 0, d)", "piecewise(b, c > 0, d)"},
		{"0 - x", "-x"},
		{"1 < 2", "1"},
		{"delay(2, 1)", "delay(2, 1)"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, String(Simplify(MustParse(tt.src))))
		})
	}
}

func TestSubstitute(t *testing.T) {
	n := MustParse("k * X + X")
	out := Substitute(n, "X", MustParse("a + b"))
	assert.Equal(t, "k * (a + b) + a + b", String(out))
	assert.Equal(t, "k * X + X", String(n))

	indexed, err := Index(n, NewMapTable([]string{"X", "k"}))
	require.NoError(t, err)
	out = SubstituteIndex(indexed, 0, Const(2))
	assert.Equal(t, 6.0, Eval(out, []float64{100, 2}, 0))
}

func TestReplaceCalls(t *testing.T) {
	body := MustParse("x * y")
	n := MustParse("f(y, 2) + f(1, f(3, 4))")

	out, count := ReplaceCalls(n, "f", []string{"x", "y"}, body)
	assert.Equal(t, 3, count)
	assert.Equal(t, "y * 2 + 1 * 3 * 4", String(out))
	assert.Equal(t, "x * y", String(body))
}

func TestTreeQueries(t *testing.T) {
	n := MustParse("k1 * A + k2 * B - k1 * C")
	assert.Equal(t, []string{"k1", "A", "k2", "B", "C"}, Names(n))
	assert.True(t, DependsOnName(n, "C"))
	assert.False(t, DependsOnName(n, "D"))

	indexed, err := Index(n, NewMapTable([]string{"A", "B", "C", "k1", "k2"}))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 4, 1, 2}, Indices(indexed))
	assert.True(t, DependsOnIndex(indexed, 2))

	assert.Equal(t, 2, CountFail(Add(Fail(), Mul(Const(2), Fail()))))
	assert.True(t, Equal(n, Copy(n)))
	assert.False(t, Equal(n, MustParse("k1 * A + k2 * B - k1 * D")))
}
