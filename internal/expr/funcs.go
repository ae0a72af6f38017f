package expr

import "math"

// Builtin describes one entry of the function catalogue.
type Builtin struct {
	Name    string
	MinArgs int
	// MaxArgs < 0 means variadic.
	MaxArgs int
	// Pure functions with constant arguments may be folded by Simplify.
	Pure bool
	Eval func(args []float64) float64
	// Unary is set for one-argument functions.
	Unary func(float64) float64
}

func unary(f func(float64) float64) func([]float64) float64 {
	return func(a []float64) float64 { return f(a[0]) }
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func truthy(v float64) bool { return v != 0 && !math.IsNaN(v) }

func factorial(x float64) float64 {
	if x < 0 || x != math.Floor(x) {
		return math.NaN()
	}
	return math.Gamma(x + 1)
}

func logf(a []float64) float64 {
	if len(a) == 2 {
		return math.Log(a[1]) / math.Log(a[0])
	}
	return math.Log(a[0])
}

func piecewise(a []float64) float64 {
	i := 0
	for ; i+1 < len(a); i += 2 {
		if truthy(a[i+1]) {
			return a[i]
		}
	}
	if i < len(a) {
		return a[i]
	}
	return math.NaN()
}

var builtins = map[string]*Builtin{}

func register(b *Builtin) { builtins[b.Name] = b }

func init() {
	for name, f := range map[string]func(float64) float64{
		"exp":   math.Exp,
		"ln":    math.Log,
		"log10": math.Log10,
		"log2":  math.Log2,
		"sqrt":  math.Sqrt,
		"abs":   math.Abs,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"sec":   func(x float64) float64 { return 1 / math.Cos(x) },
		"csc":   func(x float64) float64 { return 1 / math.Sin(x) },
		"cot":   func(x float64) float64 { return 1 / math.Tan(x) },
		"asin":  math.Asin,
		"acos":  math.Acos,
		"atan":  math.Atan,
		"sinh":  math.Sinh,
		"cosh":  math.Cosh,
		"tanh":  math.Tanh,
		"asinh": math.Asinh,
		"acosh": math.Acosh,
		"atanh": math.Atanh,
		"sign": func(x float64) float64 {
			switch {
			case x > 0:
				return 1
			case x < 0:
				return -1
			}
			return 0
		},
	} {
		register(&Builtin{Name: name, MinArgs: 1, MaxArgs: 1, Pure: true, Eval: unary(f), Unary: f})
	}

	register(&Builtin{Name: "factorial", MinArgs: 1, MaxArgs: 1, Pure: true, Eval: unary(factorial), Unary: factorial})
	register(&Builtin{Name: "log", MinArgs: 1, MaxArgs: 2, Pure: true, Eval: logf})
	register(&Builtin{Name: "pow", MinArgs: 2, MaxArgs: 2, Pure: true, Eval: func(a []float64) float64 {
		return math.Pow(a[0], a[1])
	}})
	register(&Builtin{Name: "root", MinArgs: 2, MaxArgs: 2, Pure: true, Eval: func(a []float64) float64 {
		return math.Pow(a[1], 1/a[0])
	}})
	register(&Builtin{Name: "min", MinArgs: 1, MaxArgs: -1, Pure: true, Eval: func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}})
	register(&Builtin{Name: "max", MinArgs: 1, MaxArgs: -1, Pure: true, Eval: func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}})
	register(&Builtin{Name: "piecewise", MinArgs: 1, MaxArgs: -1, Pure: true, Eval: piecewise})
	// delay keeps no history, so it evaluates to its first argument and is never folded
	register(&Builtin{Name: "delay", MinArgs: 2, MaxArgs: 2, Pure: false, Eval: func(a []float64) float64 {
		return a[0]
	}})
}

// opAliases maps functional spellings of operators onto operator kinds.
var opAliases = map[string]OpKind{
	"gt":  OpGt,
	"lt":  OpLt,
	"geq": OpGe,
	"leq": OpLe,
	"eq":  OpEq,
	"neq": OpNe,
	"and": OpAnd,
	"or":  OpOr,
	"xor": OpXor,
	"not": OpNot,
}

func LookupBuiltin(name string) (*Builtin, bool) {
	b, ok := builtins[name]
	return b, ok
}

func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// BuiltinNames lists the catalogue including operator aliases.
func BuiltinNames() []string {
	out := make([]string, 0, len(builtins)+len(opAliases))
	for n := range builtins {
		out = append(out, n)
	}
	for n := range opAliases {
		out = append(out, n)
	}
	return out
}
