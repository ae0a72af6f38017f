package expr

import "fmt"

// NameTable resolves variable names to positions in a value array.
type NameTable interface {
	Lookup(name string) (int, bool)
}

// MapTable is the hashed NameTable used by model assembly.
type MapTable map[string]int

func (m MapTable) Lookup(name string) (int, bool) {
	i, ok := m[name]
	return i, ok
}

// NewMapTable indexes names by their position.
func NewMapTable(names []string) MapTable {
	m := make(MapTable, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// Index returns a copy of n with every variable resolved through table.
// All missing names are collected into one *UnresolvedError.
func Index(n *Node, table NameTable) (*Node, error) {
	var missing []string
	seen := map[string]bool{}
	out := Rewrite(n, func(x *Node) *Node {
		if x.Kind != KindVar {
			return nil
		}
		idx, ok := table.Lookup(x.Name)
		if !ok {
			if !seen[x.Name] {
				seen[x.Name] = true
				missing = append(missing, x.Name)
			}
			x.Index = -1
			return nil
		}
		x.Index = idx
		return nil
	})
	if len(missing) > 0 {
		return nil, &UnresolvedError{Names: missing}
	}
	return out, nil
}

// CheckCalls verifies every call names a catalogue function with a valid
// argument count.
func CheckCalls(n *Node) error {
	var err error
	Walk(n, func(x *Node) bool {
		if err != nil {
			return false
		}
		if x.Kind != KindCall {
			return true
		}
		b, ok := builtins[x.Name]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownFunction, x.Name)
			return false
		}
		if len(x.Children) < b.MinArgs || (b.MaxArgs >= 0 && len(x.Children) > b.MaxArgs) {
			err = fmt.Errorf("%w: %s takes %d..%d, got %d", ErrArity, x.Name, b.MinArgs, b.MaxArgs, len(x.Children))
			return false
		}
		return true
	})
	return err
}

// InBounds reports whether every resolved index of n lies in [0, total).
func InBounds(n *Node, total int) bool {
	return !Contains(n, func(x *Node) bool {
		return x.Kind == KindVar && (x.Index < 0 || x.Index >= total)
	})
}
