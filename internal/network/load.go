package network

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/rnsim/internal/expr"
)

var (
	// ErrInvalidDocument indicates a model file that decodes but is inconsistent.
	ErrInvalidDocument = errors.New("network: invalid document")

	// ErrDuplicateID indicates two model entities sharing one identifier.
	ErrDuplicateID = errors.New("network: duplicate identifier")
)

// FieldError locates a problem inside the document.
type FieldError struct {
	Field   string
	Wrapped error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Wrapped)
}

func (e *FieldError) Unwrap() error { return e.Wrapped }

type document struct {
	ID                 string           `yaml:"id"`
	Name               string           `yaml:"name"`
	Compartments       []compartmentDoc `yaml:"compartments"`
	Species            []speciesDoc     `yaml:"species"`
	Parameters         []parameterDoc   `yaml:"parameters"`
	Functions          []functionDoc    `yaml:"functions"`
	Reactions          []reactionDoc    `yaml:"reactions"`
	Rules              []ruleDoc        `yaml:"rules"`
	InitialAssignments []initialDoc     `yaml:"initialAssignments"`
	Events             []eventDoc       `yaml:"events"`
}

type compartmentDoc struct {
	ID       string   `yaml:"id"`
	Size     *float64 `yaml:"size"`
	Constant *bool    `yaml:"constant"`
}

type speciesDoc struct {
	ID                    string   `yaml:"id"`
	Compartment           string   `yaml:"compartment"`
	InitialConcentration  *float64 `yaml:"initialConcentration"`
	InitialAmount         *float64 `yaml:"initialAmount"`
	HasOnlySubstanceUnits bool     `yaml:"hasOnlySubstanceUnits"`
	BoundaryCondition     bool     `yaml:"boundaryCondition"`
	Constant              bool     `yaml:"constant"`
}

type parameterDoc struct {
	ID       string  `yaml:"id"`
	Value    float64 `yaml:"value"`
	Constant *bool   `yaml:"constant"`
}

type functionDoc struct {
	ID   string   `yaml:"id"`
	Args []string `yaml:"args"`
	Body string   `yaml:"body"`
}

// speciesRefDoc accepts either "X" or {species: X, stoichiometry: 2}.
type speciesRefDoc struct {
	Species       string   `yaml:"species"`
	Stoichiometry *float64 `yaml:"stoichiometry"`
}

func (r *speciesRefDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Species = node.Value
		return nil
	}
	type plain speciesRefDoc
	return node.Decode((*plain)(r))
}

type kineticLawDoc struct {
	Math       string         `yaml:"math"`
	Parameters []parameterDoc `yaml:"parameters"`
}

type reactionDoc struct {
	ID         string          `yaml:"id"`
	Reversible bool            `yaml:"reversible"`
	Reactants  []speciesRefDoc `yaml:"reactants"`
	Products   []speciesRefDoc `yaml:"products"`
	Modifiers  []string        `yaml:"modifiers"`
	KineticLaw *kineticLawDoc  `yaml:"kineticLaw"`
}

type ruleDoc struct {
	Kind     string `yaml:"kind"`
	Variable string `yaml:"variable"`
	Math     string `yaml:"math"`
}

type initialDoc struct {
	Symbol string `yaml:"symbol"`
	Math   string `yaml:"math"`
}

type eventAssignmentDoc struct {
	Variable string `yaml:"variable"`
	Math     string `yaml:"math"`
}

type eventDoc struct {
	ID          string               `yaml:"id"`
	Trigger     string               `yaml:"trigger"`
	Delay       string               `yaml:"delay"`
	Assignments []eventAssignmentDoc `yaml:"assignments"`
}

// Load reads a YAML model file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Model, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads one YAML model document from r. Unknown fields are rejected.
func Decode(r io.Reader) (*Model, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	m, err := doc.build()
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

type formulaParser struct {
	err error
}

func (p *formulaParser) parse(field, src string) *expr.Node {
	if p.err != nil {
		return nil
	}
	n, err := expr.Parse(src)
	if err != nil {
		p.err = &FieldError{Field: field, Wrapped: err}
		return nil
	}
	return n
}

// optional parses src unless it is empty.
func (p *formulaParser) optional(field, src string) *expr.Node {
	if src == "" {
		return nil
	}
	return p.parse(field, src)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func convertParameters(docs []parameterDoc) []Parameter {
	out := make([]Parameter, len(docs))
	for i, d := range docs {
		out[i] = Parameter{ID: d.ID, Value: d.Value, Constant: boolOr(d.Constant, true)}
	}
	return out
}

func convertRefs(docs []speciesRefDoc) []SpeciesRef {
	out := make([]SpeciesRef, len(docs))
	for i, d := range docs {
		out[i] = SpeciesRef{Species: d.Species, Stoichiometry: 1}
		if d.Stoichiometry != nil {
			out[i].Stoichiometry = *d.Stoichiometry
		}
	}
	return out
}

func parseRuleKind(s string) (RuleKind, error) {
	switch s {
	case "assignment", "":
		return AssignmentRule, nil
	case "rate":
		return RateRule, nil
	case "algebraic":
		return AlgebraicRule, nil
	}
	return 0, fmt.Errorf("%w: unknown rule kind %q", ErrInvalidDocument, s)
}

func (d *document) build() (*Model, error) {
	m := &Model{ID: d.ID, Name: d.Name}
	p := &formulaParser{}

	for _, c := range d.Compartments {
		size := 1.0
		if c.Size != nil {
			size = *c.Size
		}
		m.Compartments = append(m.Compartments, Compartment{ID: c.ID, Size: size, Constant: boolOr(c.Constant, true)})
	}
	for _, s := range d.Species {
		m.Species = append(m.Species, Species{
			ID:                    s.ID,
			Compartment:           s.Compartment,
			InitialConcentration:  s.InitialConcentration,
			InitialAmount:         s.InitialAmount,
			HasOnlySubstanceUnits: s.HasOnlySubstanceUnits,
			BoundaryCondition:     s.BoundaryCondition,
			Constant:              s.Constant,
		})
	}
	m.Parameters = convertParameters(d.Parameters)

	for i, f := range d.Functions {
		body := p.parse(fmt.Sprintf("functions[%d].body", i), f.Body)
		m.Functions = append(m.Functions, FunctionDefinition{ID: f.ID, Args: f.Args, Body: body})
	}
	for i, r := range d.Reactions {
		rx := Reaction{
			ID:         r.ID,
			Reversible: r.Reversible,
			Reactants:  convertRefs(r.Reactants),
			Products:   convertRefs(r.Products),
			Modifiers:  r.Modifiers,
		}
		if r.KineticLaw != nil && r.KineticLaw.Math != "" {
			rx.Law = &KineticLaw{
				Math:       p.parse(fmt.Sprintf("reactions[%d].kineticLaw.math", i), r.KineticLaw.Math),
				Parameters: convertParameters(r.KineticLaw.Parameters),
			}
		}
		m.Reactions = append(m.Reactions, rx)
	}
	for i, r := range d.Rules {
		kind, err := parseRuleKind(r.Kind)
		if err != nil {
			return nil, &FieldError{Field: fmt.Sprintf("rules[%d].kind", i), Wrapped: err}
		}
		m.Rules = append(m.Rules, Rule{
			Kind:     kind,
			Variable: r.Variable,
			Math:     p.parse(fmt.Sprintf("rules[%d].math", i), r.Math),
		})
	}
	for i, a := range d.InitialAssignments {
		m.InitialAssignments = append(m.InitialAssignments, InitialAssignment{
			Symbol: a.Symbol,
			Math:   p.parse(fmt.Sprintf("initialAssignments[%d].math", i), a.Math),
		})
	}
	for i, e := range d.Events {
		ev := Event{
			ID:      e.ID,
			Trigger: p.parse(fmt.Sprintf("events[%d].trigger", i), e.Trigger),
			Delay:   p.optional(fmt.Sprintf("events[%d].delay", i), e.Delay),
		}
		for j, a := range e.Assignments {
			ev.Assignments = append(ev.Assignments, EventAssignment{
				Variable: a.Variable,
				Math:     p.parse(fmt.Sprintf("events[%d].assignments[%d].math", i, j), a.Math),
			})
		}
		m.Events = append(m.Events, ev)
	}
	if p.err != nil {
		return nil, p.err
	}
	return m, nil
}
