package network

import (
	"errors"
	"fmt"
)

// Validate checks identifiers and cross references. All problems found are
// returned joined.
func (m *Model) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Wrapped: fmt.Errorf("%w: "+format, append([]any{ErrInvalidDocument}, args...)...)})
	}

	seen := map[string]string{}
	claim := func(field, id string) {
		if id == "" {
			fail(field, "missing id")
			return
		}
		if prev, ok := seen[id]; ok {
			errs = append(errs, &FieldError{Field: field, Wrapped: fmt.Errorf("%w: %q already used by %s", ErrDuplicateID, id, prev)})
			return
		}
		seen[id] = field
	}

	for i, c := range m.Compartments {
		claim(fmt.Sprintf("compartments[%d]", i), c.ID)
	}
	for i, s := range m.Species {
		field := fmt.Sprintf("species[%d]", i)
		claim(field, s.ID)
		if _, ok := m.FindCompartment(s.Compartment); !ok {
			fail(field, "unknown compartment %q", s.Compartment)
		}
	}
	for i, p := range m.Parameters {
		claim(fmt.Sprintf("parameters[%d]", i), p.ID)
	}
	for i, f := range m.Functions {
		field := fmt.Sprintf("functions[%d]", i)
		claim(field, f.ID)
		args := map[string]bool{}
		for _, a := range f.Args {
			if args[a] {
				fail(field, "argument %q repeated", a)
			}
			args[a] = true
		}
	}
	for i, r := range m.Reactions {
		field := fmt.Sprintf("reactions[%d]", i)
		claim(field, r.ID)
		for _, ref := range append(append([]SpeciesRef{}, r.Reactants...), r.Products...) {
			if _, ok := m.FindSpecies(ref.Species); !ok {
				fail(field, "unknown species %q", ref.Species)
			}
		}
		for _, mod := range r.Modifiers {
			if _, ok := m.FindSpecies(mod); !ok {
				fail(field, "unknown modifier %q", mod)
			}
		}
	}

	ruled := map[string]bool{}
	for i, r := range m.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if r.Kind == AlgebraicRule {
			continue
		}
		if !m.isValueSymbol(r.Variable) {
			fail(field, "unknown variable %q", r.Variable)
			continue
		}
		if ruled[r.Variable] {
			fail(field, "variable %q already has a rule", r.Variable)
		}
		ruled[r.Variable] = true
	}
	for i, a := range m.InitialAssignments {
		if !m.isValueSymbol(a.Symbol) {
			fail(fmt.Sprintf("initialAssignments[%d]", i), "unknown symbol %q", a.Symbol)
		}
	}
	for i, e := range m.Events {
		if e.ID != "" {
			claim(fmt.Sprintf("events[%d]", i), e.ID)
		}
		for j, a := range e.Assignments {
			if !m.isValueSymbol(a.Variable) {
				fail(fmt.Sprintf("events[%d].assignments[%d]", i, j), "unknown variable %q", a.Variable)
			}
		}
	}
	return errors.Join(errs...)
}

// isValueSymbol reports whether id names a compartment, species or parameter.
func (m *Model) isValueSymbol(id string) bool {
	if _, ok := m.FindSpecies(id); ok {
		return true
	}
	if _, ok := m.FindCompartment(id); ok {
		return true
	}
	_, ok := m.FindParameter(id)
	return ok
}
