package expr

import (
	"math"
	"strconv"
	"strings"
)

const (
	precOr = iota + 1
	precXor
	precAnd
	precNot
	precCmp
	precAdd
	precMul
	precNeg
	precPow
	precAtom
)

func precedence(n *Node) int {
	switch n.Kind {
	case KindConst:
		if n.Value < 0 || (n.Value == 0 && math.Signbit(n.Value)) {
			return precNeg
		}
	case KindOp:
		switch n.Op {
		case OpOr:
			return precOr
		case OpXor:
			return precAtom
		case OpAnd:
			return precAnd
		case OpNot:
			return precNot
		case OpLt, OpLe, OpGt, OpGe, OpEq, OpNe:
			return precCmp
		case OpAdd, OpSub:
			return precAdd
		case OpMul, OpDiv:
			return precMul
		case OpNeg:
			return precNeg
		case OpPow:
			return precPow
		}
	}
	return precAtom
}

// String renders n as an infix formula that Parse reads back.
func String(n *Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func (n *Node) String() string { return String(n) }

func formatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "notanumber"
	case math.IsInf(v, 1):
		return "infinity"
	case math.IsInf(v, -1):
		return "-infinity"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeChild(b *strings.Builder, n *Node, parens bool) {
	if parens {
		b.WriteByte('(')
		write(b, n)
		b.WriteByte(')')
		return
	}
	write(b, n)
}

func write(b *strings.Builder, n *Node) {
	switch n.Kind {
	case KindConst:
		b.WriteString(formatNumber(n.Value))
	case KindVar:
		b.WriteString(n.Name)
	case KindTime:
		b.WriteString("time")
	case KindFail:
		b.WriteString("<fail>")
	case KindCall:
		b.WriteString(n.Name)
		writeArgs(b, n.Children)
	case KindOp:
		writeOp(b, n)
	}
}

func writeArgs(b *strings.Builder, args []*Node) {
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		write(b, a)
	}
	b.WriteByte(')')
}

func writeOp(b *strings.Builder, n *Node) {
	p := precedence(n)
	c := n.Children
	switch n.Op {
	case OpAdd:
		for i, ch := range c {
			if i > 0 {
				if ch.Kind == KindOp && ch.Op == OpNeg {
					b.WriteString(" - ")
					writeChild(b, ch.Children[0], precedence(ch.Children[0]) <= precAdd)
					continue
				}
				b.WriteString(" + ")
			}
			writeChild(b, ch, precedence(ch) < precAdd)
		}
	case OpMul:
		for i, ch := range c {
			if i > 0 {
				b.WriteString(" * ")
			}
			writeChild(b, ch, precedence(ch) < precMul)
		}
	case OpSub, OpDiv, OpLt, OpLe, OpGt, OpGe, OpEq, OpNe:
		writeChild(b, c[0], precedence(c[0]) < p)
		b.WriteString(" " + n.Op.String() + " ")
		writeChild(b, c[1], precedence(c[1]) <= p)
	case OpPow:
		writeChild(b, c[0], precedence(c[0]) < precAtom)
		b.WriteString("^")
		writeChild(b, c[1], precedence(c[1]) < precAtom)
	case OpNeg:
		b.WriteString("-")
		writeChild(b, c[0], precedence(c[0]) <= precNeg)
	case OpNot:
		b.WriteString("not ")
		writeChild(b, c[0], precedence(c[0]) < precNot)
	case OpAnd, OpOr:
		for i, ch := range c {
			if i > 0 {
				b.WriteString(" " + n.Op.String() + " ")
			}
			writeChild(b, ch, precedence(ch) <= p)
		}
	case OpXor:
		b.WriteString("xor")
		writeArgs(b, c)
	}
}
