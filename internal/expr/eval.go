package expr

import (
	"fmt"
	"math"
)

// Eval evaluates an indexed tree against values at time t. Evaluating an
// unresolved variable or an unknown call is a contract violation and panics.
func Eval(n *Node, values []float64, t float64) float64 {
	switch n.Kind {
	case KindConst:
		return n.Value
	case KindVar:
		if n.Index < 0 {
			panic(fmt.Sprintf("expr: evaluating unresolved variable %q", n.Name))
		}
		return values[n.Index]
	case KindTime:
		return t
	case KindOp:
		return evalOp(n, values, t)
	case KindCall:
		return evalCall(n, values, t)
	case KindFail:
		return math.NaN()
	}
	panic(fmt.Sprintf("expr: unknown node kind %d", n.Kind))
}

func evalOp(n *Node, values []float64, t float64) float64 {
	c := n.Children
	switch n.Op {
	case OpAdd:
		sum := 0.0
		for _, ch := range c {
			sum += Eval(ch, values, t)
		}
		return sum
	case OpSub:
		return Eval(c[0], values, t) - Eval(c[1], values, t)
	case OpMul:
		prod := 1.0
		for _, ch := range c {
			prod *= Eval(ch, values, t)
		}
		return prod
	case OpDiv:
		return Eval(c[0], values, t) / Eval(c[1], values, t)
	case OpPow:
		return math.Pow(Eval(c[0], values, t), Eval(c[1], values, t))
	case OpNeg:
		return -Eval(c[0], values, t)
	case OpLt:
		return boolf(Eval(c[0], values, t) < Eval(c[1], values, t))
	case OpLe:
		return boolf(Eval(c[0], values, t) <= Eval(c[1], values, t))
	case OpGt:
		return boolf(Eval(c[0], values, t) > Eval(c[1], values, t))
	case OpGe:
		return boolf(Eval(c[0], values, t) >= Eval(c[1], values, t))
	case OpEq:
		return boolf(Eval(c[0], values, t) == Eval(c[1], values, t))
	case OpNe:
		return boolf(Eval(c[0], values, t) != Eval(c[1], values, t))
	case OpAnd:
		for _, ch := range c {
			if !truthy(Eval(ch, values, t)) {
				return 0
			}
		}
		return 1
	case OpOr:
		for _, ch := range c {
			if truthy(Eval(ch, values, t)) {
				return 1
			}
		}
		return 0
	case OpXor:
		odd := false
		for _, ch := range c {
			if truthy(Eval(ch, values, t)) {
				odd = !odd
			}
		}
		return boolf(odd)
	case OpNot:
		return boolf(!truthy(Eval(c[0], values, t)))
	}
	panic(fmt.Sprintf("expr: unknown operator %d", n.Op))
}

func evalCall(n *Node, values []float64, t float64) float64 {
	if n.Name == "piecewise" {
		// conditions are evaluated lazily, in order
		c := n.Children
		i := 0
		for ; i+1 < len(c); i += 2 {
			if truthy(Eval(c[i+1], values, t)) {
				return Eval(c[i], values, t)
			}
		}
		if i < len(c) {
			return Eval(c[i], values, t)
		}
		return math.NaN()
	}

	b, ok := builtins[n.Name]
	if !ok {
		panic(fmt.Sprintf("expr: evaluating unknown function %q", n.Name))
	}
	var buf [4]float64
	args := buf[:0]
	for _, ch := range n.Children {
		args = append(args, Eval(ch, values, t))
	}
	return b.Eval(args)
}

// EvalNamed evaluates an unindexed tree looking variables up by name.
// Missing names evaluate to NaN.
func EvalNamed(n *Node, values map[string]float64, t float64) float64 {
	r := Rewrite(n, func(x *Node) *Node {
		if x.Kind != KindVar {
			return nil
		}
		v, ok := values[x.Name]
		if !ok {
			v = math.NaN()
		}
		return Const(v)
	})
	return Eval(r, nil, t)
}

// Truthy is the boolean reading of an evaluated value.
func Truthy(v float64) bool { return truthy(v) }
