package compute

import (
	"fmt"
	"math"

	"github.com/san-kum/rnsim/internal/expr"
)

// ClosureBackend compiles a tree once into nested Go closures, so each
// evaluation skips the kind and operator dispatch of the tree walker.
type ClosureBackend struct{}

func NewClosureBackend() *ClosureBackend { return &ClosureBackend{} }

func (b *ClosureBackend) Name() string    { return "closure" }
func (b *ClosureBackend) Available() bool { return true }

func (b *ClosureBackend) Compile(n *expr.Node) (Program, error) {
	if err := checkResolved(n); err != nil {
		return nil, err
	}
	return compile(n)
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func compileChildren(nodes []*expr.Node) ([]Program, error) {
	out := make([]Program, len(nodes))
	for i, n := range nodes {
		p, err := compile(n)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func compile(n *expr.Node) (Program, error) {
	switch n.Kind {
	case expr.KindConst:
		v := n.Value
		return func([]float64, float64) float64 { return v }, nil
	case expr.KindVar:
		idx := n.Index
		return func(values []float64, _ float64) float64 { return values[idx] }, nil
	case expr.KindTime:
		return func(_ []float64, t float64) float64 { return t }, nil
	case expr.KindFail:
		return func([]float64, float64) float64 { return math.NaN() }, nil
	case expr.KindOp:
		return compileOp(n)
	case expr.KindCall:
		return compileCall(n)
	}
	return nil, fmt.Errorf("%w: node kind %d", ErrUncompilable, n.Kind)
}

func compileOp(n *expr.Node) (Program, error) {
	c, err := compileChildren(n.Children)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case expr.OpAdd:
		if len(c) == 2 {
			a, b := c[0], c[1]
			return func(v []float64, t float64) float64 { return a(v, t) + b(v, t) }, nil
		}
		return func(v []float64, t float64) float64 {
			sum := 0.0
			for _, p := range c {
				sum += p(v, t)
			}
			return sum
		}, nil
	case expr.OpMul:
		if len(c) == 2 {
			a, b := c[0], c[1]
			return func(v []float64, t float64) float64 { return a(v, t) * b(v, t) }, nil
		}
		return func(v []float64, t float64) float64 {
			prod := 1.0
			for _, p := range c {
				prod *= p(v, t)
			}
			return prod
		}, nil
	case expr.OpNeg:
		a := c[0]
		return func(v []float64, t float64) float64 { return -a(v, t) }, nil
	case expr.OpNot:
		a := c[0]
		return func(v []float64, t float64) float64 { return boolf(!expr.Truthy(a(v, t))) }, nil
	case expr.OpAnd:
		return func(v []float64, t float64) float64 {
			for _, p := range c {
				if !expr.Truthy(p(v, t)) {
					return 0
				}
			}
			return 1
		}, nil
	case expr.OpOr:
		return func(v []float64, t float64) float64 {
			for _, p := range c {
				if expr.Truthy(p(v, t)) {
					return 1
				}
			}
			return 0
		}, nil
	case expr.OpXor:
		return func(v []float64, t float64) float64 {
			odd := false
			for _, p := range c {
				if expr.Truthy(p(v, t)) {
					odd = !odd
				}
			}
			return boolf(odd)
		}, nil
	}

	if len(c) != 2 {
		return nil, fmt.Errorf("%w: operator %s with %d operands", ErrUncompilable, n.Op, len(c))
	}
	a, b := c[0], c[1]
	switch n.Op {
	case expr.OpSub:
		return func(v []float64, t float64) float64 { return a(v, t) - b(v, t) }, nil
	case expr.OpDiv:
		return func(v []float64, t float64) float64 { return a(v, t) / b(v, t) }, nil
	case expr.OpPow:
		return func(v []float64, t float64) float64 { return math.Pow(a(v, t), b(v, t)) }, nil
	case expr.OpLt:
		return func(v []float64, t float64) float64 { return boolf(a(v, t) < b(v, t)) }, nil
	case expr.OpLe:
		return func(v []float64, t float64) float64 { return boolf(a(v, t) <= b(v, t)) }, nil
	case expr.OpGt:
		return func(v []float64, t float64) float64 { return boolf(a(v, t) > b(v, t)) }, nil
	case expr.OpGe:
		return func(v []float64, t float64) float64 { return boolf(a(v, t) >= b(v, t)) }, nil
	case expr.OpEq:
		return func(v []float64, t float64) float64 { return boolf(a(v, t) == b(v, t)) }, nil
	case expr.OpNe:
		return func(v []float64, t float64) float64 { return boolf(a(v, t) != b(v, t)) }, nil
	}
	return nil, fmt.Errorf("%w: operator %s", ErrUncompilable, n.Op)
}

func compileCall(n *expr.Node) (Program, error) {
	c, err := compileChildren(n.Children)
	if err != nil {
		return nil, err
	}
	if n.Name == "piecewise" {
		return func(v []float64, t float64) float64 {
			i := 0
			for ; i+1 < len(c); i += 2 {
				if expr.Truthy(c[i+1](v, t)) {
					return c[i](v, t)
				}
			}
			if i < len(c) {
				return c[i](v, t)
			}
			return math.NaN()
		}, nil
	}

	b, ok := expr.LookupBuiltin(n.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrUncompilable, expr.ErrUnknownFunction, n.Name)
	}
	if b.Unary != nil && len(c) == 1 {
		f, a := b.Unary, c[0]
		return func(v []float64, t float64) float64 { return f(a(v, t)) }, nil
	}
	eval := b.Eval
	return func(v []float64, t float64) float64 {
		args := make([]float64, len(c))
		for i, p := range c {
			args[i] = p(v, t)
		}
		return eval(args)
	}, nil
}
