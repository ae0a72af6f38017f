// Package deriv differentiates expression trees symbolically.
//
// Constructs that have no derivative in this vocabulary produce an
// [expr.Fail] marker instead of an error; callers count the markers with
// [expr.CountFail] and fall back to numerical approximation.
package deriv

import (
	"math"

	"github.com/san-kum/rnsim/internal/expr"
)

// Differentiate returns the simplified derivative of an indexed tree with
// respect to the variable at index wrt.
func Differentiate(n *expr.Node, wrt int) *expr.Node {
	d := differ{match: func(x *expr.Node) bool { return x.Kind == expr.KindVar && x.Index == wrt }}
	return expr.Simplify(d.diff(n))
}

// DifferentiateName is Differentiate for trees whose variables are still
// referenced by name.
func DifferentiateName(n *expr.Node, name string) *expr.Node {
	d := differ{match: func(x *expr.Node) bool { return x.Kind == expr.KindVar && x.Name == name }}
	return expr.Simplify(d.diff(n))
}

type differ struct {
	match func(*expr.Node) bool
}

func (d differ) depends(n *expr.Node) bool {
	return expr.Contains(n, d.match)
}

func (d differ) diff(n *expr.Node) *expr.Node {
	switch n.Kind {
	case expr.KindConst, expr.KindTime:
		return expr.Const(0)
	case expr.KindVar:
		if d.match(n) {
			return expr.Const(1)
		}
		return expr.Const(0)
	case expr.KindFail:
		return expr.Fail()
	case expr.KindOp:
		return d.diffOp(n)
	case expr.KindCall:
		if !d.depends(n) {
			return expr.Const(0)
		}
		return d.diffCall(n)
	}
	return expr.Fail()
}

func (d differ) diffOp(n *expr.Node) *expr.Node {
	c := n.Children
	switch n.Op {
	case expr.OpAdd:
		terms := make([]*expr.Node, len(c))
		for i, ch := range c {
			terms[i] = d.diff(ch)
		}
		return expr.Add(terms...)
	case expr.OpSub:
		return expr.Sub(d.diff(c[0]), d.diff(c[1]))
	case expr.OpNeg:
		return expr.Neg(d.diff(c[0]))
	case expr.OpMul:
		terms := make([]*expr.Node, 0, len(c))
		for i := range c {
			if !d.depends(c[i]) {
				continue
			}
			factors := make([]*expr.Node, 0, len(c))
			for j, other := range c {
				if j == i {
					factors = append(factors, d.diff(other))
				} else {
					factors = append(factors, expr.Copy(other))
				}
			}
			terms = append(terms, expr.Mul(factors...))
		}
		if len(terms) == 0 {
			return expr.Const(0)
		}
		return expr.Add(terms...)
	case expr.OpDiv:
		a, b := c[0], c[1]
		if !d.depends(b) {
			return expr.Div(d.diff(a), expr.Copy(b))
		}
		// (a'b - ab') / b^2
		num := expr.Sub(
			expr.Mul(d.diff(a), expr.Copy(b)),
			expr.Mul(expr.Copy(a), d.diff(b)),
		)
		return expr.Div(num, expr.Pow(expr.Copy(b), expr.Const(2)))
	case expr.OpPow:
		return d.diffPow(c[0], c[1])
	}
	// comparisons and boolean operators
	if d.depends(n) {
		return expr.Fail()
	}
	return expr.Const(0)
}

func (d differ) diffPow(base, exp *expr.Node) *expr.Node {
	db, de := d.depends(base), d.depends(exp)
	switch {
	case !db && !de:
		return expr.Const(0)
	case !de:
		// e * b^(e-1) * b'
		return expr.Mul(
			expr.Copy(exp),
			expr.Pow(expr.Copy(base), expr.Sub(expr.Copy(exp), expr.Const(1))),
			d.diff(base),
		)
	case !db:
		// b^e * ln(b) * e'
		return expr.Mul(
			expr.Pow(expr.Copy(base), expr.Copy(exp)),
			expr.Call("ln", expr.Copy(base)),
			d.diff(exp),
		)
	}
	// b^e * (e' ln(b) + e b' / b)
	return expr.Mul(
		expr.Pow(expr.Copy(base), expr.Copy(exp)),
		expr.Add(
			expr.Mul(d.diff(exp), expr.Call("ln", expr.Copy(base))),
			expr.Div(expr.Mul(expr.Copy(exp), d.diff(base)), expr.Copy(base)),
		),
	)
}

func (d differ) diffCall(n *expr.Node) *expr.Node {
	args := n.Children
	switch n.Name {
	case "floor", "ceil", "sign":
		return expr.Const(0)
	case "piecewise":
		out := make([]*expr.Node, len(args))
		for i, a := range args {
			if i%2 == 1 {
				out[i] = expr.Copy(a)
				continue
			}
			out[i] = d.diff(a)
		}
		return expr.Call("piecewise", out...)
	case "pow":
		if len(args) == 2 {
			return d.diffPow(args[0], args[1])
		}
	case "root":
		if len(args) == 2 {
			return d.diffPow(args[1], expr.Div(expr.Const(1), args[0]))
		}
	case "log":
		if len(args) == 2 {
			return d.diff(expr.Div(expr.Call("ln", args[1]), expr.Call("ln", args[0])))
		}
	case "min", "max":
		if len(args) == 2 {
			cmp := expr.OpLe
			if n.Name == "max" {
				cmp = expr.OpGe
			}
			pw := expr.Call("piecewise", args[0], expr.Op(cmp, args[0], args[1]), args[1])
			return d.diffCall(pw)
		}
		if len(args) == 1 {
			return d.diff(args[0])
		}
	}

	if len(args) == 1 {
		if outer := derivative(n.Name, args[0]); outer != nil {
			return expr.Mul(outer, d.diff(args[0]))
		}
	}
	// delay, factorial and anything outside the derivative table
	return expr.Fail()
}

// derivative returns f'(u) for the unary catalogue function f, or nil.
func derivative(name string, arg *expr.Node) *expr.Node {
	u := func() *expr.Node { return expr.Copy(arg) }
	call := func(f string) *expr.Node { return expr.Call(f, u()) }
	sq := func(x *expr.Node) *expr.Node { return expr.Pow(x, expr.Const(2)) }
	inv := func(x *expr.Node) *expr.Node { return expr.Div(expr.Const(1), x) }

	switch name {
	case "exp":
		return call("exp")
	case "ln", "log":
		return inv(u())
	case "log10":
		return inv(expr.Mul(u(), expr.Const(math.Ln10)))
	case "log2":
		return inv(expr.Mul(u(), expr.Const(math.Ln2)))
	case "sqrt":
		return inv(expr.Mul(expr.Const(2), call("sqrt")))
	case "abs":
		return call("sign")
	case "sin":
		return call("cos")
	case "cos":
		return expr.Neg(call("sin"))
	case "tan":
		return sq(call("sec"))
	case "sec":
		return expr.Mul(call("sec"), call("tan"))
	case "csc":
		return expr.Neg(expr.Mul(call("csc"), call("cot")))
	case "cot":
		return expr.Neg(sq(call("csc")))
	case "asin":
		return inv(expr.Call("sqrt", expr.Sub(expr.Const(1), sq(u()))))
	case "acos":
		return expr.Neg(inv(expr.Call("sqrt", expr.Sub(expr.Const(1), sq(u())))))
	case "atan":
		return inv(expr.Add(expr.Const(1), sq(u())))
	case "sinh":
		return call("cosh")
	case "cosh":
		return call("sinh")
	case "tanh":
		return expr.Sub(expr.Const(1), sq(call("tanh")))
	case "asinh":
		return inv(expr.Call("sqrt", expr.Add(sq(u()), expr.Const(1))))
	case "acosh":
		return inv(expr.Call("sqrt", expr.Sub(sq(u()), expr.Const(1))))
	case "atanh":
		return inv(expr.Sub(expr.Const(1), sq(u())))
	}
	return nil
}
