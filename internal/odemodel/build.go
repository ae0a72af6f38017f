package odemodel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/expr"
	"github.com/san-kum/rnsim/internal/network"
	"github.com/san-kum/rnsim/internal/reduce"
)

// Build partitions, indexes and checks the reduced model rm. Any problem is
// recorded in store and yields a nil model.
func Build(rm *reduce.Model, store *diag.Store) (*Model, error) {
	if store == nil {
		store = diag.NewStore()
	}
	b := &builder{rm: rm, store: store, m: &Model{ID: rm.ID, table: expr.MapTable{}, store: store}}
	if err := b.partition(); err != nil {
		return nil, err
	}
	b.initialValues()
	if err := b.events(); err != nil {
		return nil, err
	}
	if err := b.index(); err != nil {
		return nil, err
	}
	if err := b.order(); err != nil {
		return nil, err
	}
	m := b.m
	if err := m.Validate(); err != nil {
		store.Record(diag.Fatal, diag.CodeUnknown, "%v", err)
		return nil, err
	}
	logrus.Debugf("odemodel: %s: neq=%d nass=%d nconst=%d nalg=%d", m.ID, m.NEq, m.NAss, m.NConst, m.NAlg)
	return m, nil
}

type builder struct {
	rm    *reduce.Model
	store *diag.Store
	m     *Model
}

func (b *builder) place(name string) error {
	if _, dup := b.m.table[name]; dup {
		b.store.Record(diag.Error, diag.CodeUnknown, "variable %s is defined twice", name)
		return fmt.Errorf("%w: %s defined twice", ErrPartition, name)
	}
	b.m.table[name] = len(b.m.names)
	b.m.names = append(b.m.names, name)
	return nil
}

func (b *builder) partition() error {
	rm, m := b.rm, b.m
	for _, eq := range rm.Rates {
		if err := b.place(eq.Variable); err != nil {
			return err
		}
		m.Rates = append(m.Rates, expr.Copy(eq.Math))
	}
	m.NEq = len(m.names)

	for _, eq := range rm.Assignments {
		if err := b.place(eq.Variable); err != nil {
			return err
		}
		m.Assignments = append(m.Assignments, expr.Copy(eq.Math))
	}
	m.NAss = len(m.names) - m.NEq

	placeholders := b.placeholders()
	skip := func(name string) bool {
		_, placed := m.table[name]
		return placed || placeholders[name]
	}
	for _, c := range rm.Compartments {
		if !skip(c.ID) {
			_ = b.place(c.ID)
		}
	}
	for _, s := range rm.Species {
		if !skip(s.ID) {
			_ = b.place(s.ID)
		}
	}
	for _, p := range rm.Parameters {
		if !skip(p.ID) {
			_ = b.place(p.ID)
		}
	}
	m.NConst = len(m.names) - m.NEq - m.NAss

	for _, n := range rm.Algebraic {
		for _, name := range expr.Names(n) {
			if placeholders[name] {
				if _, placed := m.table[name]; !placed {
					_ = b.place(name)
				}
			}
		}
		m.Algebraic = append(m.Algebraic, expr.Copy(n))
	}
	m.NAlg = len(m.names) - m.NEq - m.NAss - m.NConst
	return nil
}

// placeholders returns the symbols of algebraic rules that are neither
// differential nor assigned and are either non-constant or undefined.
func (b *builder) placeholders() map[string]bool {
	out := map[string]bool{}
	for _, n := range b.rm.Algebraic {
		for _, name := range expr.Names(n) {
			if _, placed := b.m.table[name]; placed {
				continue
			}
			if constant, known := b.entityConstant(name); known && constant {
				continue
			}
			out[name] = true
		}
	}
	return out
}

func (b *builder) entityConstant(name string) (constant, known bool) {
	for _, c := range b.rm.Compartments {
		if c.ID == name {
			return c.Constant, true
		}
	}
	for _, s := range b.rm.Species {
		if s.ID == name {
			return s.Constant, true
		}
	}
	for _, p := range b.rm.Parameters {
		if p.ID == name {
			return p.Constant, true
		}
	}
	return false, false
}

func (b *builder) entityInitial(name string) *expr.Node {
	for _, c := range b.rm.Compartments {
		if c.ID == name {
			return expr.Const(c.Size)
		}
	}
	for _, s := range b.rm.Species {
		if s.ID == name {
			return b.speciesInitial(&s)
		}
	}
	for _, p := range b.rm.Parameters {
		if p.ID == name {
			return expr.Const(p.Value)
		}
	}
	return expr.Const(0)
}

// speciesInitial is the concentration, or the amount for species measured in
// substance units. The other quantity is converted through the compartment.
func (b *builder) speciesInitial(s *network.Species) *expr.Node {
	switch {
	case s.InitialConcentration != nil && s.HasOnlySubstanceUnits:
		return expr.Mul(expr.Const(*s.InitialConcentration), expr.Var(s.Compartment))
	case s.InitialConcentration != nil:
		return expr.Const(*s.InitialConcentration)
	case s.InitialAmount != nil && s.HasOnlySubstanceUnits:
		return expr.Const(*s.InitialAmount)
	case s.InitialAmount != nil:
		return expr.Div(expr.Const(*s.InitialAmount), expr.Var(s.Compartment))
	}
	b.store.Record(diag.Warning, diag.CodeUnknown, "species %s has no initial value; starting at 0", s.ID)
	return expr.Const(0)
}

func (b *builder) initialValues() {
	m := b.m
	m.Initial = make([]*expr.Node, m.Total())
	for i, name := range m.names {
		if m.Type(i) == Assigned {
			m.Initial[i] = expr.Copy(m.Assignments[i-m.NEq])
			continue
		}
		m.Initial[i] = b.entityInitial(name)
	}
	for _, a := range b.rm.InitialAssignments {
		i, ok := m.table[a.Symbol]
		if !ok {
			continue
		}
		if m.Type(i) == Assigned {
			b.store.Record(diag.Warning, diag.CodeUnknown,
				"initial assignment to %s ignored: the variable has an assignment rule", a.Symbol)
			continue
		}
		m.Initial[i] = expr.Copy(a.Math)
	}
}

// events copies the event list. An assignment to a rule-defined variable
// would be overwritten before it is ever observed, so it is rejected.
func (b *builder) events() error {
	var ruled []string
	for _, ev := range b.rm.Events {
		out := Event{ID: ev.ID, Trigger: expr.Copy(ev.Trigger), Delay: expr.Copy(ev.Delay)}
		for _, a := range ev.Assignments {
			idx, ok := b.m.table[a.Variable]
			if !ok {
				idx = -1
			} else if b.m.Type(idx) == Assigned {
				b.store.Record(diag.Error, diag.CodeEvents,
					"event %s assigns %s, which has an assignment rule", ev.ID, a.Variable)
				ruled = append(ruled, ev.ID+":"+a.Variable)
			}
			out.Assignments = append(out.Assignments, EventAssignment{Index: idx, Math: expr.Copy(a.Math)})
		}
		b.m.Events = append(b.m.Events, out)
	}
	if len(ruled) > 0 {
		return fmt.Errorf("%w: %s", ErrEventTarget, strings.Join(ruled, ", "))
	}
	return nil
}

func (b *builder) slots() []**expr.Node {
	m := b.m
	var slots []**expr.Node
	for i := range m.Rates {
		slots = append(slots, &m.Rates[i])
	}
	for i := range m.Assignments {
		slots = append(slots, &m.Assignments[i])
	}
	for i := range m.Algebraic {
		slots = append(slots, &m.Algebraic[i])
	}
	for i := range m.Initial {
		slots = append(slots, &m.Initial[i])
	}
	for i := range m.Events {
		ev := &m.Events[i]
		slots = append(slots, &ev.Trigger)
		if ev.Delay != nil {
			slots = append(slots, &ev.Delay)
		}
		for j := range ev.Assignments {
			slots = append(slots, &ev.Assignments[j].Math)
		}
	}
	return slots
}

// index resolves every stored expression, collecting all unknown names and
// functions before failing.
func (b *builder) index() error {
	var missing []string
	seen := map[string]bool{}
	var callErrs []error
	for _, slot := range b.slots() {
		if err := expr.CheckCalls(*slot); err != nil {
			callErrs = append(callErrs, err)
			b.store.Record(diag.Error, diag.CodeUnknownFunction, "%s: %v", expr.String(*slot), err)
		}
		n, err := expr.Index(*slot, b.m.table)
		if err != nil {
			var ue *expr.UnresolvedError
			if !errors.As(err, &ue) {
				return err
			}
			for _, name := range ue.Names {
				if !seen[name] {
					seen[name] = true
					missing = append(missing, name)
				}
			}
			continue
		}
		*slot = n
	}
	for _, ev := range b.m.Events {
		for _, a := range ev.Assignments {
			if a.Index < 0 {
				b.store.Record(diag.Error, diag.CodeUnresolvedSymbol, "event %s assigns an unknown variable", ev.ID)
				return fmt.Errorf("%w: event %s", ErrUnresolved, ev.ID)
			}
		}
	}
	if len(missing) > 0 {
		b.store.Record(diag.Error, diag.CodeUnresolvedSymbol, "unresolved symbols: %s", strings.Join(missing, ", "))
		return fmt.Errorf("%w: %w", ErrUnresolved, &expr.UnresolvedError{Names: missing})
	}
	if len(callErrs) > 0 {
		return errors.Join(callErrs...)
	}
	return nil
}

// order sorts the initial expressions by dependency, lowest index first
// among the ready ones.
func (b *builder) order() error {
	m := b.m
	total := m.Total()
	deps := make([][]int, total)
	for i, n := range m.Initial {
		deps[i] = expr.Indices(n)
	}
	done := make([]bool, total)
	order := make([]int, 0, total)
	for len(order) < total {
		progressed := false
		for i := 0; i < total; i++ {
			if done[i] {
				continue
			}
			ready := true
			for _, d := range deps[i] {
				if !done[d] {
					ready = false
					break
				}
			}
			if ready {
				done[i] = true
				order = append(order, i)
				progressed = true
			}
		}
		if !progressed {
			var stuck []string
			for i := 0; i < total; i++ {
				if !done[i] {
					stuck = append(stuck, m.names[i])
				}
			}
			b.store.Record(diag.Error, diag.CodeCircular, "circular initial values or assignment rules: %s", strings.Join(stuck, ", "))
			return fmt.Errorf("%w: %s", ErrCircular, strings.Join(stuck, ", "))
		}
	}
	m.InitialOrder = order
	return nil
}
