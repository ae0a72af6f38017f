package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrSettings indicates a settings record that cannot drive a run.
	ErrSettings = errors.New("sim: invalid settings")

	// ErrUnknownVariable indicates a name outside the model's name table.
	ErrUnknownVariable = errors.New("sim: unknown variable")

	// ErrReadOnly indicates a write to a variable whose value is derived.
	ErrReadOnly = errors.New("sim: variable is computed by an assignment")

	// ErrAlgebraic indicates a model with algebraic rules, which pure ODE
	// integration cannot handle.
	ErrAlgebraic = errors.New("sim: model contains algebraic rules")

	// ErrClosed indicates use of an instance after Close.
	ErrClosed = errors.New("sim: instance closed")

	// ErrNoSensitivity indicates a sensitivity query on a run without
	// sensitivity analysis.
	ErrNoSensitivity = errors.New("sim: sensitivity analysis not enabled")

	// ErrAdjointPhase indicates an adjoint operation in the wrong phase.
	ErrAdjointPhase = errors.New("sim: adjoint phase unavailable")
)

// StepError wraps an engine failure with the step it happened on.
type StepError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("sim: step %d at t=%g: %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
