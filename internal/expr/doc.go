// Package expr implements the symbolic expression trees that carry every
// rate law, rule and event formula of a reaction network.
//
// A tree starts out with variables referenced by name, as produced by
// [Parse]. Model assembly resolves each name to a position in a flat value
// array with [Index]; from then on [Eval] reads variables in constant time:
//
//	n, _ := expr.Parse("k1 * A / (Km + A)")
//	n, err := expr.Index(n, expr.NewMapTable([]string{"A", "k1", "Km"}))
//	v := expr.Eval(n, []float64{2, 0.5, 1}, 0)
//
// # Ownership
//
// A tree belongs to exactly one container. [Copy], [Substitute],
// [SubstituteIndex], [ReplaceCalls], [Index] and [Simplify] build new trees
// and never modify their input.
//
// # Functions
//
// Calls are limited to the built-in catalogue (see [BuiltinNames]). The
// functional operator spellings gt, lt, geq, leq, eq, neq, and, or, xor and
// not are turned into operator nodes while parsing.
package expr
