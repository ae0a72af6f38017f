package odemodel

import (
	"errors"
	"fmt"

	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/expr"
)

var (
	// ErrUnresolved indicates stored expressions naming unknown symbols.
	ErrUnresolved = errors.New("odemodel: unresolved symbols")

	// ErrCircular indicates initial values or assignment rules that depend on themselves.
	ErrCircular = errors.New("odemodel: circular definition")

	// ErrJacobian indicates a Jacobian with entries that could not be differentiated.
	ErrJacobian = errors.New("odemodel: jacobian construction failed")

	// ErrSensitivity indicates a sensitivity matrix with entries that could not be differentiated.
	ErrSensitivity = errors.New("odemodel: sensitivity construction failed")

	// ErrNotConstant indicates a sensitivity parameter outside the constant range.
	ErrNotConstant = errors.New("odemodel: sensitivity parameter is not a constant")

	// ErrEventTarget indicates an event assigning a variable defined by an assignment rule.
	ErrEventTarget = errors.New("odemodel: event assigns a rule-defined variable")

	// ErrPartition indicates a broken index partition or an out-of-range index.
	ErrPartition = errors.New("odemodel: partition invariant violated")
)

type VarType int

const (
	Differential VarType = iota
	Assigned
	Constant
	AlgebraicPlaceholder
)

func (v VarType) String() string {
	switch v {
	case Differential:
		return "differential"
	case Assigned:
		return "assigned"
	case Constant:
		return "constant"
	case AlgebraicPlaceholder:
		return "algebraic"
	}
	return fmt.Sprintf("vartype(%d)", int(v))
}

type EventAssignment struct {
	Index int
	Math  *expr.Node
}

type Event struct {
	ID          string
	Trigger     *expr.Node
	Delay       *expr.Node
	Assignments []EventAssignment
}

type Model struct {
	ID string

	names []string
	table expr.MapTable

	NEq, NAss, NConst, NAlg int

	Rates       []*expr.Node
	Assignments []*expr.Node
	Algebraic   []*expr.Node
	// Initial holds one initial-value expression per variable.
	Initial []*expr.Node
	// InitialOrder lists every index so that each initial expression only
	// reads variables earlier in the list.
	InitialOrder []int
	Events       []Event

	Jacobian           [][]*expr.Node
	Sensitivity        [][]*expr.Node
	SensIndices        []int
	InitialSensitivity [][]*expr.Node

	store    *diag.Store
	expanded []*expr.Node
}

func (m *Model) Total() int { return len(m.names) }

// Names returns a copy of the name table in index order.
func (m *Model) Names() []string {
	return append([]string(nil), m.names...)
}

func (m *Model) Name(i int) string { return m.names[i] }

func (m *Model) Lookup(name string) (int, bool) { return m.table.Lookup(name) }

// Type returns the partition range holding index i.
func (m *Model) Type(i int) VarType {
	switch {
	case i < m.NEq:
		return Differential
	case i < m.NEq+m.NAss:
		return Assigned
	case i < m.NEq+m.NAss+m.NConst:
		return Constant
	}
	return AlgebraicPlaceholder
}

// ConstantRange returns the half-open index range of the constants.
func (m *Model) ConstantRange() (lo, hi int) {
	lo = m.NEq + m.NAss
	return lo, lo + m.NConst
}

func (m *Model) HasJacobian() bool    { return m.Jacobian != nil }
func (m *Model) HasSensitivity() bool { return m.Sensitivity != nil }

// JacobianEntry returns d(rate i)/d(variable j).
func (m *Model) JacobianEntry(i, j int) (*expr.Node, bool) {
	if m.Jacobian == nil || i < 0 || i >= m.NEq || j < 0 || j >= m.NEq {
		return nil, false
	}
	return m.Jacobian[i][j], true
}

// SensitivityEntry returns d(rate i)/d(SensIndices[j]).
func (m *Model) SensitivityEntry(i, j int) (*expr.Node, bool) {
	if m.Sensitivity == nil || i < 0 || i >= m.NEq || j < 0 || j >= len(m.SensIndices) {
		return nil, false
	}
	return m.Sensitivity[i][j], true
}

func (m *Model) FreeJacobian() { m.Jacobian = nil }

func (m *Model) FreeSensitivity() {
	m.Sensitivity = nil
	m.SensIndices = nil
	m.InitialSensitivity = nil
}

// Store returns the diagnostic store the model was built with.
func (m *Model) Store() *diag.Store { return m.store }

// Validate checks the partition invariant and that every stored expression
// only references indices inside the name table.
func (m *Model) Validate() error {
	total := m.Total()
	if m.NEq+m.NAss+m.NConst+m.NAlg != total {
		return fmt.Errorf("%w: %d+%d+%d+%d != %d", ErrPartition, m.NEq, m.NAss, m.NConst, m.NAlg, total)
	}
	if len(m.Rates) != m.NEq || len(m.Assignments) != m.NAss || len(m.Initial) != total {
		return fmt.Errorf("%w: expression counts do not match the partition", ErrPartition)
	}
	for _, n := range m.expressions() {
		if !expr.InBounds(n, total) {
			return fmt.Errorf("%w: %s references an index outside [0, %d)", ErrPartition, expr.String(n), total)
		}
	}
	return nil
}

func (m *Model) expressions() []*expr.Node {
	var out []*expr.Node
	out = append(out, m.Rates...)
	out = append(out, m.Assignments...)
	out = append(out, m.Algebraic...)
	out = append(out, m.Initial...)
	for _, ev := range m.Events {
		out = append(out, ev.Trigger)
		if ev.Delay != nil {
			out = append(out, ev.Delay)
		}
		for _, a := range ev.Assignments {
			out = append(out, a.Math)
		}
	}
	for _, rows := range [][][]*expr.Node{m.Jacobian, m.Sensitivity, m.InitialSensitivity} {
		for _, row := range rows {
			out = append(out, row...)
		}
	}
	return out
}
