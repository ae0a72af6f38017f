package integrators

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotInitialized = errors.New("integrators: engine not initialized")
	ErrTooManySteps   = errors.New("integrators: maximum number of internal steps reached")
	ErrStepTooSmall   = errors.New("integrators: step size underflow")
	ErrNonFinite      = errors.New("integrators: non-finite value in solution")
	ErrDimension      = errors.New("integrators: dimension mismatch")
	ErrUnknownMethod  = errors.New("integrators: unknown method")
)

// RHS writes dy/dt at (t, y) into dydt.
type RHS func(t float64, y, dydt []float64)

// JacobianFunc writes df_i/dy_j at (t, y) into jac, given f = RHS(t, y).
type JacobianFunc func(t float64, y, f []float64, jac [][]float64)

// SensRHSFunc writes df_i/dp_j at (t, y) into out.
type SensRHSFunc func(t float64, y []float64, out [][]float64)

// Problem is everything an engine needs to integrate y' = f(t, y) and,
// when NSens > 0, the forward sensitivities s' = J s + df/dp.
type Problem struct {
	N        int
	RHS      RHS
	Jacobian JacobianFunc // finite differences when nil

	NSens    int
	SensRHS  SensRHSFunc
	InitSens [][]float64 // N x NSens, zero when nil

	AbsTol      float64
	RelTol      float64
	MaxSteps    int // internal steps per IntegrateToEnd call
	InitialStep float64
}

const (
	DefaultAbsTol   = 1e-12
	DefaultRelTol   = 1e-6
	DefaultMaxSteps = 10000
)

func (p *Problem) withDefaults() {
	if p.AbsTol <= 0 {
		p.AbsTol = DefaultAbsTol
	}
	if p.RelTol <= 0 {
		p.RelTol = DefaultRelTol
	}
	if p.MaxSteps <= 0 {
		p.MaxSteps = DefaultMaxSteps
	}
}

func (p *Problem) validate(y0 []float64) error {
	if p.RHS == nil {
		return fmt.Errorf("%w: no right-hand side", ErrDimension)
	}
	if len(y0) != p.N {
		return fmt.Errorf("%w: %d initial values for %d equations", ErrDimension, len(y0), p.N)
	}
	if p.NSens > 0 && p.SensRHS == nil {
		return fmt.Errorf("%w: %d sensitivities without a sensitivity right-hand side", ErrDimension, p.NSens)
	}
	if p.InitSens != nil && len(p.InitSens) != p.N {
		return fmt.Errorf("%w: initial sensitivities have %d rows, want %d", ErrDimension, len(p.InitSens), p.N)
	}
	return nil
}

// Stats counts the work an engine did since Init.
type Stats struct {
	Steps        int
	Rejected     int
	RHSEvals     int
	JacobianEval int
}

// Engine integrates one Problem. Time may run backwards: the direction of
// each call follows the sign of its target minus the current time.
type Engine interface {
	Name() string
	Init(p Problem, t0 float64, y0 []float64) error
	// Step takes one internal step toward tout, never past it, and returns
	// the time reached.
	Step(tout float64) (float64, error)
	IntegrateToEnd(tEnd float64) error
	Time() float64
	Values() []float64
	Sensitivities() [][]float64
	Reinit(t float64, y []float64) error
	Stats() Stats
}

var methods = map[string]func() Method{
	"euler": func() Method { return NewEuler() },
	"rk4":   func() Method { return NewRK4() },
	"rk45":  func() Method { return NewRK45() },
}

// New returns an engine driving the named method.
func New(name string) (Engine, error) {
	fn, ok := methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	return NewSolver(fn()), nil
}

func Names() []string {
	names := make([]string, 0, len(methods))
	for n := range methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
