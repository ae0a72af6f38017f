package compute

import (
	"errors"
	"fmt"

	"github.com/san-kum/rnsim/internal/expr"
)

var (
	// ErrUnknownBackend indicates a backend name outside the registry.
	ErrUnknownBackend = errors.New("compute: unknown backend")

	// ErrUncompilable indicates a tree a backend cannot turn into a program,
	// such as one with unresolved variables.
	ErrUncompilable = errors.New("compute: expression cannot be compiled")
)

// Program evaluates one compiled expression against a value array at time t.
type Program func(values []float64, t float64) float64

type Backend interface {
	Name() string
	Available() bool
	Compile(n *expr.Node) (Program, error)
}

// AutoSelectBackend prefers compiled closures and falls back to the tree walker.
func AutoSelectBackend() Backend {
	closure := NewClosureBackend()
	if closure.Available() {
		return closure
	}
	return NewTreeBackend()
}

// ByName returns the backend registered as name; "" and "auto" select
// automatically.
func ByName(name string) (Backend, error) {
	switch name {
	case "", "auto":
		return AutoSelectBackend(), nil
	case "tree":
		return NewTreeBackend(), nil
	case "closure":
		return NewClosureBackend(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

func CompileAll(b Backend, nodes []*expr.Node) ([]Program, error) {
	out := make([]Program, len(nodes))
	for i, n := range nodes {
		p, err := b.Compile(n)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func CompileMatrix(b Backend, rows [][]*expr.Node) ([][]Program, error) {
	out := make([][]Program, len(rows))
	for i, row := range rows {
		p, err := CompileAll(b, row)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// EvalAll writes every program's value into out.
func EvalAll(progs []Program, values []float64, t float64, out []float64) {
	for i, p := range progs {
		out[i] = p(values, t)
	}
}

func EvalMatrix(progs [][]Program, values []float64, t float64, out [][]float64) {
	for i, row := range progs {
		EvalAll(row, values, t, out[i])
	}
}

func checkResolved(n *expr.Node) error {
	var err error
	expr.Walk(n, func(x *expr.Node) bool {
		if err != nil {
			return false
		}
		if !x.IsResolved() {
			err = fmt.Errorf("%w: unresolved variable %s", ErrUncompilable, x.Name)
		}
		return true
	})
	if err != nil {
		return err
	}
	if cerr := expr.CheckCalls(n); cerr != nil {
		return fmt.Errorf("%w: %w", ErrUncompilable, cerr)
	}
	return nil
}
