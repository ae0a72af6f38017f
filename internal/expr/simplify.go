package expr

import "math"

// Simplify folds constants and removes identities bottom-up. Term order is
// kept, so equal inputs always print identically.
func Simplify(n *Node) *Node {
	return Rewrite(n, simplifyNode)
}

func simplifyNode(x *Node) *Node {
	switch x.Kind {
	case KindOp:
		return simplifyOp(x)
	case KindCall:
		return simplifyCall(x)
	}
	return nil
}

func allConst(nodes []*Node) bool {
	for _, n := range nodes {
		if n.Kind != KindConst {
			return false
		}
	}
	return true
}

func simplifyOp(x *Node) *Node {
	c := x.Children
	switch x.Op {
	case OpAdd:
		return simplifyAdd(x)
	case OpMul:
		return simplifyMul(x)
	case OpSub:
		switch {
		case c[0].IsConst() && c[1].IsConst():
			return Const(c[0].Value - c[1].Value)
		case c[1].IsValue(0):
			return c[0]
		case c[0].IsValue(0):
			return negate(c[1])
		}
	case OpNeg:
		return negate(c[0])
	case OpDiv:
		switch {
		case c[0].IsConst() && c[1].IsConst() && c[1].Value != 0:
			return Const(c[0].Value / c[1].Value)
		case c[0].IsValue(0) && !c[1].IsValue(0):
			return Const(0)
		case c[1].IsValue(1):
			return c[0]
		case c[1].IsValue(-1):
			return negate(c[0])
		}
	case OpPow:
		switch {
		case c[1].IsValue(0):
			return Const(1)
		case c[1].IsValue(1):
			return c[0]
		case c[0].IsValue(1):
			return Const(1)
		case c[0].IsConst() && c[1].IsConst():
			return Const(math.Pow(c[0].Value, c[1].Value))
		case c[0].IsValue(0) && c[1].IsConst() && c[1].Value > 0:
			return Const(0)
		}
	default:
		if allConst(c) {
			return Const(evalOp(x, nil, 0))
		}
	}
	return nil
}

func simplifyAdd(x *Node) *Node {
	terms := make([]*Node, 0, len(x.Children))
	sum := 0.0
	for _, ch := range flatten(OpAdd, x.Children) {
		if ch.IsConst() {
			sum += ch.Value
			continue
		}
		terms = append(terms, ch)
	}
	if sum != 0 || math.IsNaN(sum) {
		terms = append(terms, Const(sum))
	}
	switch len(terms) {
	case 0:
		return Const(0)
	case 1:
		return terms[0]
	}
	return Add(terms...)
}

func simplifyMul(x *Node) *Node {
	factors := make([]*Node, 0, len(x.Children))
	coeff := 1.0
	for _, ch := range flatten(OpMul, x.Children) {
		if ch.IsConst() {
			coeff *= ch.Value
			continue
		}
		factors = append(factors, ch)
	}
	if coeff == 0 {
		return Const(0)
	}
	if len(factors) == 0 {
		return Const(coeff)
	}

	var rest *Node
	if len(factors) == 1 {
		rest = factors[0]
	} else {
		rest = Mul(factors...)
	}
	switch coeff {
	case 1:
		return rest
	case -1:
		return negate(rest)
	}
	return Mul(append([]*Node{Const(coeff)}, factors...)...)
}

func flatten(op OpKind, children []*Node) []*Node {
	out := make([]*Node, 0, len(children))
	for _, ch := range children {
		if ch.Kind == KindOp && ch.Op == op {
			out = append(out, ch.Children...)
			continue
		}
		out = append(out, ch)
	}
	return out
}

func negate(n *Node) *Node {
	switch {
	case n.IsConst():
		return Const(-n.Value)
	case n.Kind == KindOp && n.Op == OpNeg:
		return n.Children[0]
	}
	return Neg(n)
}

func simplifyCall(x *Node) *Node {
	if x.Name == "piecewise" {
		return simplifyPiecewise(x)
	}
	b, ok := builtins[x.Name]
	if !ok || !b.Pure || !allConst(x.Children) {
		return nil
	}
	return Const(evalCall(x, nil, 0))
}

func simplifyPiecewise(x *Node) *Node {
	c := x.Children
	kept := make([]*Node, 0, len(c))
	i := 0
	for ; i+1 < len(c); i += 2 {
		cond := c[i+1]
		if cond.IsConst() {
			if truthy(cond.Value) {
				if len(kept) == 0 {
					return c[i]
				}
				kept = append(kept, c[i])
				return Call("piecewise", kept...)
			}
			continue
		}
		kept = append(kept, c[i], cond)
	}
	if i < len(c) {
		if len(kept) == 0 {
			return c[i]
		}
		kept = append(kept, c[i])
	}
	if len(kept) == len(c) {
		return nil
	}
	if len(kept) == 0 {
		return Const(math.NaN())
	}
	return Call("piecewise", kept...)
}
