package expr

import (
	"fmt"
	"math"
	"math/big"

	"go.starlark.net/syntax"
)

var namedConstants = map[string]float64{
	"pi":           math.Pi,
	"exponentiale": math.E,
	"true":         1,
	"True":         1,
	"false":        0,
	"False":        0,
	"infinity":     math.Inf(1),
	"INF":          math.Inf(1),
	"notanumber":   math.NaN(),
	"NaN":          math.NaN(),
}

// Parse reads an infix formula such as "k1 * A * B / (Km + A)". The grammar
// is starlark's expression grammar with ^ read as power, bound tighter than
// the arithmetic operators and left-associative. "a if c else b" becomes a
// piecewise call. The identifier "time" is the reserved time variable.
func Parse(src string) (*Node, error) {
	e, err := (&syntax.FileOptions{}).ParseExpr("formula", src, 0)
	if err != nil {
		return nil, &ParseError{Src: src, Wrapped: fmt.Errorf("%w: %v", ErrSyntax, err)}
	}
	n, err := (&converter{grouped: map[*Node]bool{}}).convert(e)
	if err != nil {
		return nil, &ParseError{Src: src, Wrapped: err}
	}
	return n, nil
}

// MustParse is Parse for formulas known to be valid.
func MustParse(src string) *Node {
	n, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return n
}

var binaryOps = map[syntax.Token]OpKind{
	syntax.PLUS:  OpAdd,
	syntax.MINUS: OpSub,
	syntax.STAR:  OpMul,
	syntax.SLASH: OpDiv,
	syntax.LT:    OpLt,
	syntax.LE:    OpLe,
	syntax.GT:    OpGt,
	syntax.GE:    OpGe,
	syntax.EQL:   OpEq,
	syntax.NEQ:   OpNe,
	syntax.AND:   OpAnd,
	syntax.OR:    OpOr,
}

// converter turns a starlark AST into a tree. grouped remembers the nodes
// that were written in parentheses, which power re-association must not
// break apart.
type converter struct {
	grouped map[*Node]bool
}

func (c *converter) convert(e syntax.Expr) (*Node, error) {
	switch e := e.(type) {
	case *syntax.ParenExpr:
		n, err := c.convert(e.X)
		if err != nil {
			return nil, err
		}
		c.grouped[n] = true
		return n, nil
	case *syntax.Literal:
		return convertLiteral(e)
	case *syntax.Ident:
		return convertIdent(e.Name), nil
	case *syntax.UnaryExpr:
		x, err := c.convert(e.X)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case syntax.MINUS:
			return Neg(x), nil
		case syntax.PLUS:
			return x, nil
		case syntax.NOT:
			return Op(OpNot, x), nil
		}
		return nil, fmt.Errorf("%w: unsupported unary operator %s", ErrSyntax, e.Op)
	case *syntax.BinaryExpr:
		if e.Op == syntax.EQ {
			return nil, fmt.Errorf("%w: assignment in formula", ErrSyntax)
		}
		l, err := c.convert(e.X)
		if err != nil {
			return nil, err
		}
		r, err := c.convert(e.Y)
		if err != nil {
			return nil, err
		}
		if e.Op == syntax.CIRCUMFLEX {
			return c.pow(l, r), nil
		}
		op, ok := binaryOps[e.Op]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported operator %s", ErrSyntax, e.Op)
		}
		return Op(op, l, r), nil
	case *syntax.CondExpr:
		t, err := c.convert(e.True)
		if err != nil {
			return nil, err
		}
		cond, err := c.convert(e.Cond)
		if err != nil {
			return nil, err
		}
		f, err := c.convert(e.False)
		if err != nil {
			return nil, err
		}
		return Call("piecewise", t, cond, f), nil
	case *syntax.CallExpr:
		return c.convertCall(e)
	}
	return nil, fmt.Errorf("%w: unsupported expression %T", ErrSyntax, e)
}

// loose reports whether n is an unparenthesised arithmetic node that
// starlark bound tighter than ^ although mathematically it binds looser.
func (c *converter) loose(n *Node) bool {
	if n.Kind != KindOp || c.grouped[n] {
		return false
	}
	switch n.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpNeg:
		return true
	}
	return false
}

// pow rebuilds base ^ exp with power precedence. Starlark parses
// "a * b ^ 2" as "(a * b) ^ 2", so a loose base gives up its last operand
// and a loose exponent its first one. When both are loose the exponent side
// is opened first unless it binds tighter, keeping equal levels
// left-associative.
func (c *converter) pow(base, exp *Node) *Node {
	lb, le := c.loose(base), c.loose(exp) && exp.Op != OpNeg
	if le && (!lb || precedence(exp) <= precedence(base)) {
		exp.Children[0] = c.pow(base, exp.Children[0])
		return exp
	}
	if lb {
		last := len(base.Children) - 1
		base.Children[last] = c.pow(base.Children[last], exp)
		return base
	}
	return Pow(base, exp)
}

func convertLiteral(l *syntax.Literal) (*Node, error) {
	switch v := l.Value.(type) {
	case int64:
		return Const(float64(v)), nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(v).Float64()
		return Const(f), nil
	case float64:
		return Const(v), nil
	}
	return nil, fmt.Errorf("%w: unsupported literal %s", ErrSyntax, l.Raw)
}

func convertIdent(name string) *Node {
	if name == "time" {
		return Time()
	}
	if v, ok := namedConstants[name]; ok {
		return Const(v)
	}
	return Var(name)
}

func (c *converter) convertCall(call *syntax.CallExpr) (*Node, error) {
	ident, ok := call.Fn.(*syntax.Ident)
	if !ok {
		return nil, fmt.Errorf("%w: call target must be a name", ErrSyntax)
	}
	args := make([]*Node, 0, len(call.Args))
	for _, a := range call.Args {
		if b, ok := a.(*syntax.BinaryExpr); ok && b.Op == syntax.EQ {
			return nil, fmt.Errorf("%w: keyword arguments are not supported in %s()", ErrSyntax, ident.Name)
		}
		n, err := c.convert(a)
		if err != nil {
			return nil, err
		}
		args = append(args, n)
	}

	if op, ok := opAliases[ident.Name]; ok {
		if op == OpNot && len(args) != 1 {
			return nil, fmt.Errorf("%w: not takes 1 argument", ErrArity)
		}
		if op != OpNot && op != OpAnd && op != OpOr && op != OpXor && len(args) != 2 {
			return nil, fmt.Errorf("%w: %s takes 2 arguments", ErrArity, ident.Name)
		}
		return Op(op, args...), nil
	}
	if ident.Name == "pow" && len(args) == 2 {
		return Pow(args[0], args[1]), nil
	}
	return Call(ident.Name, args...), nil
}
