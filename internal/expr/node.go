package expr

import "math"

type Kind int

const (
	KindConst Kind = iota
	KindVar
	KindTime
	KindOp
	KindCall
	// KindFail marks a subterm the differentiation engine could not handle.
	KindFail
)

type OpKind int

const (
	OpAdd OpKind = iota
	OpSub
	OpMul
	OpDiv
	OpPow
	OpNeg
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAnd
	OpOr
	OpXor
	OpNot
)

var opSymbols = [...]string{
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpPow: "^",
	OpNeg: "-",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
	OpEq:  "==",
	OpNe:  "!=",
	OpAnd: "and",
	OpOr:  "or",
	OpXor: "xor",
	OpNot: "not",
}

func (o OpKind) String() string {
	if o < OpAdd || o > OpNot {
		return "?"
	}
	return opSymbols[o]
}

// IsLogical reports whether the operator yields a boolean.
func (o OpKind) IsLogical() bool {
	return o >= OpLt
}

// Node is one vertex of an expression tree. A tree is owned by a single
// container; every transformation in this package returns a fresh tree.
type Node struct {
	Kind     Kind
	Value    float64
	Name     string
	Index    int
	Op       OpKind
	Children []*Node
}

func Const(v float64) *Node { return &Node{Kind: KindConst, Value: v, Index: -1} }
func Var(name string) *Node { return &Node{Kind: KindVar, Name: name, Index: -1} }
func Time() *Node           { return &Node{Kind: KindTime, Index: -1} }
func Fail() *Node           { return &Node{Kind: KindFail, Index: -1} }

// IndexedVar builds an already resolved variable leaf.
func IndexedVar(name string, idx int) *Node {
	return &Node{Kind: KindVar, Name: name, Index: idx}
}

func Op(op OpKind, children ...*Node) *Node {
	return &Node{Kind: KindOp, Op: op, Index: -1, Children: children}
}

func Call(name string, args ...*Node) *Node {
	return &Node{Kind: KindCall, Name: name, Index: -1, Children: args}
}

func Add(terms ...*Node) *Node   { return Op(OpAdd, terms...) }
func Sub(a, b *Node) *Node       { return Op(OpSub, a, b) }
func Mul(factors ...*Node) *Node { return Op(OpMul, factors...) }
func Div(a, b *Node) *Node       { return Op(OpDiv, a, b) }
func Pow(a, b *Node) *Node       { return Op(OpPow, a, b) }
func Neg(a *Node) *Node          { return Op(OpNeg, a) }

func (n *Node) IsConst() bool { return n != nil && n.Kind == KindConst }

// IsValue reports whether n is the constant v.
func (n *Node) IsValue(v float64) bool {
	return n != nil && n.Kind == KindConst && n.Value == v
}

func (n *Node) IsResolved() bool { return n.Kind != KindVar || n.Index >= 0 }

// Copy returns a deep copy of n.
func Copy(n *Node) *Node {
	if n == nil {
		return nil
	}
	c := *n
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = Copy(ch)
		}
	}
	return &c
}

// Equal compares two trees structurally. Resolved variables compare by
// index, unresolved ones by name.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || len(a.Children) != len(b.Children) {
		return false
	}
	switch a.Kind {
	case KindConst:
		if a.Value != b.Value && !(math.IsNaN(a.Value) && math.IsNaN(b.Value)) {
			return false
		}
	case KindVar:
		if a.Index >= 0 || b.Index >= 0 {
			if a.Index != b.Index {
				return false
			}
		} else if a.Name != b.Name {
			return false
		}
	case KindOp:
		if a.Op != b.Op {
			return false
		}
	case KindCall:
		if a.Name != b.Name {
			return false
		}
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// Walk visits n and its descendants in pre-order until fn returns false.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Contains reports whether any node of the tree satisfies pred.
func Contains(n *Node, pred func(*Node) bool) bool {
	found := false
	Walk(n, func(x *Node) bool {
		if found {
			return false
		}
		if pred(x) {
			found = true
			return false
		}
		return true
	})
	return found
}

func CountFail(n *Node) int {
	count := 0
	Walk(n, func(x *Node) bool {
		if x.Kind == KindFail {
			count++
		}
		return true
	})
	return count
}

// Names returns the distinct variable names of n in first-seen order.
func Names(n *Node) []string {
	seen := map[string]bool{}
	var out []string
	Walk(n, func(x *Node) bool {
		if x.Kind == KindVar && !seen[x.Name] {
			seen[x.Name] = true
			out = append(out, x.Name)
		}
		return true
	})
	return out
}

// Indices returns the distinct resolved variable indices of n in first-seen order.
func Indices(n *Node) []int {
	seen := map[int]bool{}
	var out []int
	Walk(n, func(x *Node) bool {
		if x.Kind == KindVar && x.Index >= 0 && !seen[x.Index] {
			seen[x.Index] = true
			out = append(out, x.Index)
		}
		return true
	})
	return out
}

func DependsOnIndex(n *Node, idx int) bool {
	return Contains(n, func(x *Node) bool { return x.Kind == KindVar && x.Index == idx })
}

func DependsOnName(n *Node, name string) bool {
	return Contains(n, func(x *Node) bool { return x.Kind == KindVar && x.Name == name })
}

// Substitute replaces every unresolved variable called name with a copy of repl.
func Substitute(n *Node, name string, repl *Node) *Node {
	return replace(n, func(x *Node) bool { return x.Kind == KindVar && x.Name == name }, repl, nil)
}

// SubstituteIndex replaces every variable resolved to idx with a copy of repl.
func SubstituteIndex(n *Node, idx int, repl *Node) *Node {
	return replace(n, func(x *Node) bool { return x.Kind == KindVar && x.Index == idx }, repl, nil)
}

// replace copies n, swapping matching nodes for a copy of repl, or of
// byName[node.Name] when byName is set.
func replace(n *Node, match func(*Node) bool, repl *Node, byName map[string]*Node) *Node {
	if n == nil {
		return nil
	}
	if match(n) {
		if byName != nil {
			return Copy(byName[n.Name])
		}
		return Copy(repl)
	}
	c := *n
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = replace(ch, match, repl, byName)
		}
	}
	return &c
}

// Rewrite rebuilds n bottom-up, letting fn replace any node after its
// children were rewritten. fn returning nil keeps the node.
func Rewrite(n *Node, fn func(*Node) *Node) *Node {
	if n == nil {
		return nil
	}
	c := *n
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = Rewrite(ch, fn)
		}
	}
	if r := fn(&c); r != nil {
		return r
	}
	return &c
}

// ReplaceCalls inlines every call to name by substituting its arguments for
// params in a copy of body. Substitution is simultaneous, so an argument
// mentioning a parameter name is not substituted again. It returns the new
// tree and the number of calls replaced.
func ReplaceCalls(n *Node, name string, params []string, body *Node) (*Node, int) {
	count := 0
	out := Rewrite(n, func(x *Node) *Node {
		if x.Kind != KindCall || x.Name != name || len(x.Children) != len(params) {
			return nil
		}
		count++
		args := make(map[string]*Node, len(params))
		for i, p := range params {
			args[p] = x.Children[i]
		}
		return replace(body, func(v *Node) bool {
			_, ok := args[v.Name]
			return v.Kind == KindVar && ok
		}, nil, args)
	})
	return out, count
}
