// Package reduce turns a reaction network into a reduced model: one rate
// expression per differential variable, plus the assignment rules,
// algebraic rules and events the network declares. Reactions do not
// survive reduction.
package reduce

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/expr"
	"github.com/san-kum/rnsim/internal/network"
)

var (
	// ErrReduction indicates a reduced model that is incomplete. The model is
	// still returned so its diagnostics can be inspected.
	ErrReduction = errors.New("reduce: model reduction failed")

	// ErrAlgebraicRules indicates a model that cannot be integrated as a pure ODE system.
	ErrAlgebraicRules = errors.New("reduce: algebraic rules are not supported")
)

// Equation binds a formula to the variable it defines.
type Equation struct {
	Variable string
	Math     *expr.Node
}

// Model is the reduced model. Every expression is owned by the model and
// references other entities by name.
type Model struct {
	ID                 string
	Compartments       []network.Compartment
	Species            []network.Species
	Parameters         []network.Parameter
	Functions          []network.FunctionDefinition
	InitialAssignments []network.InitialAssignment

	// Rates holds explicit rate rules first, then the synthesized species
	// equations in species document order.
	Rates       []Equation
	Assignments []Equation
	Algebraic   []*expr.Node
	Events      []network.Event
}

// Rate returns the rate expression of variable.
func (m *Model) Rate(variable string) (*expr.Node, bool) {
	for _, eq := range m.Rates {
		if eq.Variable == variable {
			return eq.Math, true
		}
	}
	return nil, false
}

func (m *Model) Assignment(variable string) (*expr.Node, bool) {
	for _, eq := range m.Assignments {
		if eq.Variable == variable {
			return eq.Math, true
		}
	}
	return nil, false
}

// Reduce builds the reduced model of doc. Problems are recorded in store;
// when any of them leave the model incomplete the best-effort model is
// returned together with an error wrapping ErrReduction.
func Reduce(doc *network.Model, store *diag.Store) (*Model, error) {
	if store == nil {
		store = diag.NewStore()
	}
	r := &reducer{doc: doc, store: store}
	m := r.run()
	if len(r.failures) > 0 {
		return m, fmt.Errorf("%w: %w", ErrReduction, errors.Join(r.failures...))
	}
	logrus.Debugf("reduce: %s: %d rates, %d assignments, %d events",
		doc.ID, len(m.Rates), len(m.Assignments), len(m.Events))
	return m, nil
}

type reducer struct {
	doc      *network.Model
	store    *diag.Store
	failures []error
}

func (r *reducer) fail(err error) {
	r.failures = append(r.failures, err)
}

func (r *reducer) run() *Model {
	doc := r.doc
	m := &Model{
		ID:           doc.ID,
		Compartments: append([]network.Compartment(nil), doc.Compartments...),
		Species:      append([]network.Species(nil), doc.Species...),
		Parameters:   append([]network.Parameter(nil), doc.Parameters...),
	}
	for _, f := range doc.Functions {
		m.Functions = append(m.Functions, network.FunctionDefinition{
			ID:   f.ID,
			Args: append([]string(nil), f.Args...),
			Body: expr.Copy(f.Body),
		})
	}
	for _, a := range doc.InitialAssignments {
		m.InitialAssignments = append(m.InitialAssignments, network.InitialAssignment{Symbol: a.Symbol, Math: expr.Copy(a.Math)})
	}

	for _, rule := range doc.Rules {
		if rule.Kind == network.RateRule {
			m.Rates = append(m.Rates, Equation{Variable: rule.Variable, Math: expr.Copy(rule.Math)})
		}
	}

	for i := range doc.Species {
		s := &doc.Species[i]
		if _, ruled := doc.RuleFor(s.ID); ruled {
			continue
		}
		// boundary and constant species without a rule keep their initial value
		if s.Constant || s.BoundaryCondition {
			continue
		}
		rate, ok := r.speciesRate(s)
		if !ok {
			continue
		}
		m.Rates = append(m.Rates, Equation{Variable: s.ID, Math: rate})
	}

	for _, ev := range doc.Events {
		m.Events = append(m.Events, copyEvent(ev))
	}
	if n := len(doc.Events); n > 0 {
		r.store.Record(diag.Warning, diag.CodeEvents,
			"model %s defines %d event(s); triggers are evaluated at output time points", doc.ID, n)
	}
	for _, rule := range doc.Rules {
		if rule.Kind == network.AlgebraicRule {
			m.Algebraic = append(m.Algebraic, expr.Copy(rule.Math))
		}
	}
	if n := len(m.Algebraic); n > 0 {
		r.store.Record(diag.Error, diag.CodeAlgebraicRules,
			"model %s defines %d algebraic rule(s), which cannot be integrated as ODEs", doc.ID, n)
		r.fail(ErrAlgebraicRules)
	}

	for _, rule := range doc.Rules {
		if rule.Kind == network.AssignmentRule {
			m.Assignments = append(m.Assignments, Equation{Variable: rule.Variable, Math: expr.Copy(rule.Math)})
		}
	}

	if err := inline(m, r.store); err != nil {
		r.fail(err)
	}
	return m
}

// speciesRate sums the reaction terms of s in document order. It reports
// false when a reaction s takes part in has no kinetic law.
func (r *reducer) speciesRate(s *network.Species) (*expr.Node, bool) {
	var sum *expr.Node
	add := func(term *expr.Node, reactant bool) {
		switch {
		case sum == nil && reactant:
			sum = expr.Neg(term)
		case sum == nil:
			sum = term
		case reactant:
			sum = expr.Sub(sum, term)
		default:
			sum = expr.Add(sum, term)
		}
	}

	complete := true
	for i := range r.doc.Reactions {
		rx := &r.doc.Reactions[i]
		refs := participation(rx, s.ID)
		if len(refs) == 0 {
			continue
		}
		if rx.Law == nil || rx.Law.Math == nil {
			r.store.Record(diag.Error, diag.CodeMissingKineticLaw,
				"species %s: reaction %s has no kinetic law; species equation omitted", s.ID, rx.ID)
			r.fail(fmt.Errorf("reaction %s has no kinetic law", rx.ID))
			complete = false
			continue
		}
		for _, ref := range refs {
			add(term(rx.Law, ref.Stoichiometry), ref.reactant)
		}
	}
	if !complete {
		return nil, false
	}
	if sum == nil {
		return expr.Const(0), true
	}
	if s.HasOnlySubstanceUnits {
		return sum, true
	}
	return expr.Div(sum, expr.Var(s.Compartment)), true
}

type participant struct {
	network.SpeciesRef
	reactant bool
}

// participation lists the references of rx to species, reactants first.
func participation(rx *network.Reaction, species string) []participant {
	var out []participant
	for _, ref := range rx.Reactants {
		if ref.Species == species {
			out = append(out, participant{ref, true})
		}
	}
	for _, ref := range rx.Products {
		if ref.Species == species {
			out = append(out, participant{ref, false})
		}
	}
	return out
}

// term is stoichiometry times the law with its local parameters replaced by
// their values. Unit stoichiometry leaves the law alone.
func term(law *network.KineticLaw, stoich float64) *expr.Node {
	n := expr.Copy(law.Math)
	for _, p := range law.Parameters {
		n = expr.Substitute(n, p.ID, expr.Const(p.Value))
	}
	if stoich == 1 {
		return n
	}
	return expr.Mul(expr.Const(stoich), n)
}

func copyEvent(ev network.Event) network.Event {
	out := network.Event{
		ID:      ev.ID,
		Trigger: expr.Copy(ev.Trigger),
		Delay:   expr.Copy(ev.Delay),
	}
	for _, a := range ev.Assignments {
		out.Assignments = append(out.Assignments, network.EventAssignment{Variable: a.Variable, Math: expr.Copy(a.Math)})
	}
	return out
}
