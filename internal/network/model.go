// Package network holds the in-memory reaction-network document: the
// compartments, species, parameters, reactions, rules and events a model
// file describes, with every formula already parsed into an expression tree.
package network

import "github.com/san-kum/rnsim/internal/expr"

type Model struct {
	ID                 string
	Name               string
	Compartments       []Compartment
	Species            []Species
	Parameters         []Parameter
	Functions          []FunctionDefinition
	Reactions          []Reaction
	Rules              []Rule
	InitialAssignments []InitialAssignment
	Events             []Event
}

type Compartment struct {
	ID       string
	Size     float64
	Constant bool
}

// Species carries either an initial concentration or an initial amount.
// When both are set the concentration wins.
type Species struct {
	ID                    string
	Compartment           string
	InitialConcentration  *float64
	InitialAmount         *float64
	HasOnlySubstanceUnits bool
	BoundaryCondition     bool
	Constant              bool
}

type Parameter struct {
	ID       string
	Value    float64
	Constant bool
}

// FunctionDefinition is a user function inlined at every call site.
type FunctionDefinition struct {
	ID   string
	Args []string
	Body *expr.Node
}

type SpeciesRef struct {
	Species       string
	Stoichiometry float64
}

// KineticLaw is a reaction's rate law. Parameters are local to the law and
// shadow global names.
type KineticLaw struct {
	Math       *expr.Node
	Parameters []Parameter
}

type Reaction struct {
	ID         string
	Reversible bool
	Reactants  []SpeciesRef
	Products   []SpeciesRef
	Modifiers  []string
	// Law is nil when the document gives no rate law.
	Law *KineticLaw
}

type RuleKind int

const (
	AssignmentRule RuleKind = iota
	RateRule
	AlgebraicRule
)

func (k RuleKind) String() string {
	switch k {
	case AssignmentRule:
		return "assignment"
	case RateRule:
		return "rate"
	case AlgebraicRule:
		return "algebraic"
	}
	return "unknown"
}

// Rule defines Variable as a formula, a derivative or, for algebraic rules,
// states that Math equals zero. Algebraic rules have no Variable.
type Rule struct {
	Kind     RuleKind
	Variable string
	Math     *expr.Node
}

type InitialAssignment struct {
	Symbol string
	Math   *expr.Node
}

type EventAssignment struct {
	Variable string
	Math     *expr.Node
}

// Event fires its assignments when Trigger turns true. A nil Delay fires
// immediately.
type Event struct {
	ID          string
	Trigger     *expr.Node
	Delay       *expr.Node
	Assignments []EventAssignment
}

func (m *Model) FindSpecies(id string) (*Species, bool) {
	for i := range m.Species {
		if m.Species[i].ID == id {
			return &m.Species[i], true
		}
	}
	return nil, false
}

func (m *Model) FindCompartment(id string) (*Compartment, bool) {
	for i := range m.Compartments {
		if m.Compartments[i].ID == id {
			return &m.Compartments[i], true
		}
	}
	return nil, false
}

func (m *Model) FindParameter(id string) (*Parameter, bool) {
	for i := range m.Parameters {
		if m.Parameters[i].ID == id {
			return &m.Parameters[i], true
		}
	}
	return nil, false
}

func (m *Model) FindFunction(id string) (*FunctionDefinition, bool) {
	for i := range m.Functions {
		if m.Functions[i].ID == id {
			return &m.Functions[i], true
		}
	}
	return nil, false
}

// RuleFor returns the rate or assignment rule defining id.
func (m *Model) RuleFor(id string) (*Rule, bool) {
	for i := range m.Rules {
		r := &m.Rules[i]
		if r.Kind != AlgebraicRule && r.Variable == id {
			return r, true
		}
	}
	return nil, false
}
