package sim

import "fmt"

// State is the position of an instance in its run lifecycle.
type State int

const (
	Uninitialized State = iota
	Ready
	Stepping
	EventPending
	SteadyState
	Completed
	Failed
)

var stateNames = [...]string{"uninitialized", "ready", "stepping", "event-pending", "steady-state", "completed", "failed"}

func (s State) String() string {
	if s < Uninitialized || s > Failed {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Phase selects the direction of integration.
type Phase int

const (
	Forward Phase = iota
	Backward
)

func (p Phase) String() string {
	if p == Backward {
		return "adjoint"
	}
	return "forward"
}

// RunState holds the mutable values of one run over a shared model.
type RunState struct {
	Values []float64
	Time   float64
	Run    int

	Triggers []bool

	SteadyState        bool
	AssignmentsCurrent bool

	// Sens is neq x nsens when sensitivity analysis is enabled.
	Sens [][]float64

	Adjoint    []float64
	Quadrature []float64
}

func newRunState(total, nevents, neq, nsens int) *RunState {
	rs := &RunState{
		Values:   make([]float64, total),
		Triggers: make([]bool, nevents),
	}
	if nsens > 0 {
		rs.Sens = newMatrix(neq, nsens)
	}
	return rs
}

func newMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func copyMatrix(dst, src [][]float64) {
	for i := range src {
		copy(dst[i], src[i])
	}
}

func cloneMatrix(src [][]float64) [][]float64 {
	m := make([][]float64, len(src))
	for i := range src {
		m[i] = append([]float64(nil), src[i]...)
	}
	return m
}
