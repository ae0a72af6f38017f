package reduce

import (
	"errors"
	"fmt"
	"strings"

	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/expr"
)

var (
	// ErrFunctionCycle indicates function definitions that call each other
	// without end.
	ErrFunctionCycle = errors.New("reduce: recursive function definitions")

	// ErrFunctionArity indicates a user function called with the wrong
	// number of arguments.
	ErrFunctionArity = errors.New("reduce: wrong number of function arguments")
)

// expressions returns a pointer to every formula slot of m except the
// function bodies themselves.
func (m *Model) expressions() []**expr.Node {
	var slots []**expr.Node
	for i := range m.Rates {
		slots = append(slots, &m.Rates[i].Math)
	}
	for i := range m.Assignments {
		slots = append(slots, &m.Assignments[i].Math)
	}
	for i := range m.Algebraic {
		slots = append(slots, &m.Algebraic[i])
	}
	for i := range m.InitialAssignments {
		slots = append(slots, &m.InitialAssignments[i].Math)
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

// inline substitutes every user function call by the function body, pass
// after pass, until no call is left. A chain of n definitions needs at most
// n passes, so one more pass that still replaces something means a cycle.
func inline(m *Model, store *diag.Store) error {
	if len(m.Functions) == 0 {
		return nil
	}
	arity := make(map[string]int, len(m.Functions))
	for _, f := range m.Functions {
		arity[f.ID] = len(f.Args)
	}

	slots := m.expressions()
	check := func(n *expr.Node, where string) error {
		var err error
		expr.Walk(n, func(x *expr.Node) bool {
			if err != nil {
				return false
			}
			if want, ok := arity[x.Name]; ok && x.Kind == expr.KindCall && len(x.Children) != want {
				store.Record(diag.Error, diag.CodeFunctionInline,
					"%s: %s called with %d argument(s), defined with %d", where, x.Name, len(x.Children), want)
				err = fmt.Errorf("%w: %s", ErrFunctionArity, x.Name)
			}
			return true
		})
		return err
	}
	for _, f := range m.Functions {
		if err := check(f.Body, "function "+f.ID); err != nil {
			return err
		}
	}
	for _, slot := range slots {
		if err := check(*slot, "formula "+expr.String(*slot)); err != nil {
			return err
		}
	}

	for pass := 0; pass <= len(m.Functions); pass++ {
		replaced := 0
		for _, slot := range slots {
			for _, f := range m.Functions {
				var n int
				*slot, n = expr.ReplaceCalls(*slot, f.ID, f.Args, f.Body)
				replaced += n
			}
		}
		if replaced == 0 {
			return nil
		}
	}

	var pending []string
	seen := map[string]bool{}
	for _, slot := range slots {
		expr.Walk(*slot, func(x *expr.Node) bool {
			if _, ok := arity[x.Name]; ok && x.Kind == expr.KindCall && !seen[x.Name] {
				seen[x.Name] = true
				pending = append(pending, x.Name)
			}
			return true
		})
	}
	store.Record(diag.Error, diag.CodeFunctionInline,
		"function definitions never stop calling each other: %s", strings.Join(pending, ", "))
	return fmt.Errorf("%w: %s", ErrFunctionCycle, strings.Join(pending, ", "))
}
