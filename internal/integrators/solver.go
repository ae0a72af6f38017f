package integrators

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Deriv is the right-hand side of the state the method advances.
type Deriv func(t float64, z, dz []float64)

// Method advances z by one step of size h. Adaptive methods also fill errv
// with a local error estimate per component.
type Method interface {
	Name() string
	Adaptive() bool
	Order() int
	Advance(f Deriv, t, h float64, z, out, errv []float64)
}

// StepControl tunes how an adaptive method grows and shrinks its step.
type StepControl interface {
	Scales() (safety, minScale, maxScale float64)
}

// Solver runs a Method over a Problem, integrating the forward
// sensitivities alongside the state as one augmented vector.
type Solver struct {
	method Method
	p      Problem
	ready  bool

	t     float64
	h     float64
	fixed float64
	z    []float64
	znew []float64
	errv []float64

	jac  [][]float64
	par  [][]float64
	fd   FiniteDifference
	sens [][]float64

	stats Stats
}

func NewSolver(m Method) *Solver {
	return &Solver{method: m}
}

func (s *Solver) Name() string { return s.method.Name() }

func (s *Solver) Init(p Problem, t0 float64, y0 []float64) error {
	p.withDefaults()
	if err := p.validate(y0); err != nil {
		return err
	}
	s.p = p
	n, ns := p.N, p.NSens
	dim := n + n*ns
	s.z = make([]float64, dim)
	s.znew = make([]float64, dim)
	s.errv = make([]float64, dim)
	copy(s.z, y0)
	if ns > 0 {
		s.jac = newMatrix(n, n)
		s.par = newMatrix(n, ns)
		s.sens = newMatrix(n, ns)
		for i, row := range p.InitSens {
			copy(s.z[n+i*ns:n+(i+1)*ns], row)
		}
	}
	s.t = t0
	s.h = 0
	s.stats = Stats{}
	s.ready = true
	return nil
}

func newMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func (s *Solver) Time() float64 { return s.t }

// Values returns the current state. The slice is owned by the solver and
// changes with the next step.
func (s *Solver) Values() []float64 { return s.z[:s.p.N] }

// Sensitivities returns ds_i/dp_j as an N x NSens matrix owned by the solver.
func (s *Solver) Sensitivities() [][]float64 {
	n, ns := s.p.N, s.p.NSens
	for i := range s.sens {
		copy(s.sens[i], s.z[n+i*ns:n+(i+1)*ns])
	}
	return s.sens
}

func (s *Solver) Stats() Stats { return s.stats }

// Reinit restarts integration from (t, y) keeping the current sensitivities.
func (s *Solver) Reinit(t float64, y []float64) error {
	if !s.ready {
		return ErrNotInitialized
	}
	if len(y) != s.p.N {
		return fmt.Errorf("%w: %d values for %d equations", ErrDimension, len(y), s.p.N)
	}
	copy(s.z, y)
	s.t = t
	s.h = 0
	return nil
}

func (s *Solver) deriv(t float64, z, dz []float64) {
	n, ns := s.p.N, s.p.NSens
	y := z[:n]
	s.p.RHS(t, y, dz[:n])
	s.stats.RHSEvals++
	if ns == 0 {
		return
	}

	if s.p.Jacobian != nil {
		s.p.Jacobian(t, y, dz[:n], s.jac)
	} else {
		s.stats.RHSEvals += s.fd.Jacobian(s.p.RHS, t, y, dz[:n], s.jac)
	}
	s.stats.JacobianEval++
	s.p.SensRHS(t, y, s.par)

	for i := 0; i < n; i++ {
		row := s.jac[i]
		for j := 0; j < ns; j++ {
			sum := s.par[i][j]
			for k := 0; k < n; k++ {
				sum += row[k] * z[n+k*ns+j]
			}
			dz[n+i*ns+j] = sum
		}
	}
}

func finite(v []float64) bool {
	if floats.HasNaN(v) {
		return false
	}
	for _, x := range v {
		if math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// initialStep picks a first step from the scale of the state and its
// derivative when the problem does not set one.
func (s *Solver) initialStep(span float64) float64 {
	if s.p.InitialStep > 0 {
		return math.Min(s.p.InitialStep, math.Abs(span))
	}
	if !s.method.Adaptive() {
		if s.fixed > 0 {
			return math.Min(s.fixed, math.Abs(span))
		}
		return math.Min(0.01, math.Abs(span))
	}
	f := make([]float64, len(s.z))
	s.deriv(s.t, s.z, f)
	d0, d1 := floats.Norm(s.z, math.Inf(1)), floats.Norm(f, math.Inf(1))
	h := 1e-6
	if d0 > 1e-5 && d1 > 1e-5 {
		h = 0.01 * d0 / d1
	}
	return math.Min(h, math.Abs(span))
}

func (s *Solver) Step(tout float64) (float64, error) {
	if !s.ready {
		return s.t, ErrNotInitialized
	}
	span := tout - s.t
	if span == 0 {
		return s.t, nil
	}
	dir := math.Copysign(1, span)
	if s.h == 0 || !s.method.Adaptive() {
		s.h = s.initialStep(span)
	}

	for {
		tiny := 1e-14 * math.Max(1, math.Abs(s.t))
		// a remaining span within rounding of tout is absorbed
		if math.Abs(tout-s.t) < tiny {
			s.t = tout
			return s.t, nil
		}
		h := math.Min(s.h, math.Abs(tout-s.t))
		if h < tiny {
			return s.t, fmt.Errorf("%w at t=%g", ErrStepTooSmall, s.t)
		}

		if !s.method.Adaptive() {
			s.method.Advance(s.deriv, s.t, dir*h, s.z, s.znew, nil)
			return s.accept(h, tout, dir)
		}

		s.method.Advance(s.deriv, s.t, dir*h, s.z, s.znew, s.errv)
		ratio := s.errorRatio()
		safety, minScale, maxScale := s.scales()
		if ratio > 1 || math.IsNaN(ratio) {
			s.stats.Rejected++
			scale := minScale
			if !math.IsNaN(ratio) {
				scale = math.Max(minScale, safety*math.Pow(ratio, -0.25))
			}
			s.h = h * scale
			continue
		}

		next := h * maxScale
		if ratio > 0 {
			next = h * math.Min(maxScale, safety*math.Pow(ratio, -1/float64(s.method.Order()+1)))
		}
		t, err := s.accept(h, tout, dir)
		s.h = next
		return t, err
	}
}

func (s *Solver) scales() (float64, float64, float64) {
	if c, ok := s.method.(StepControl); ok {
		return c.Scales()
	}
	return 0.9, 0.2, 10
}

func (s *Solver) accept(h, tout, dir float64) (float64, error) {
	if !finite(s.znew) {
		return s.t, fmt.Errorf("%w after t=%g", ErrNonFinite, s.t)
	}
	s.z, s.znew = s.znew, s.z
	if math.Abs(tout-s.t) <= h*(1+1e-9) {
		s.t = tout
	} else {
		s.t += dir * h
	}
	s.stats.Steps++
	return s.t, nil
}

func (s *Solver) errorRatio() float64 {
	worst := 0.0
	for i, e := range s.errv {
		w := s.p.AbsTol + s.p.RelTol*math.Max(math.Abs(s.z[i]), math.Abs(s.znew[i]))
		worst = math.Max(worst, math.Abs(e)/w)
	}
	return worst
}

// IntegrateToEnd takes internal steps until tEnd is reached exactly.
func (s *Solver) IntegrateToEnd(tEnd float64) error {
	if !s.ready {
		return ErrNotInitialized
	}
	if !s.method.Adaptive() && s.p.InitialStep <= 0 {
		// land on tEnd with equal fixed steps
		if span := math.Abs(tEnd - s.t); span > 0 {
			s.fixed = span / math.Ceil(span/0.01-1e-9)
			defer func() { s.fixed = 0 }()
		}
	}
	for steps := 0; s.t != tEnd; steps++ {
		if steps >= s.p.MaxSteps {
			return fmt.Errorf("%w: %d steps before t=%g", ErrTooManySteps, steps, tEnd)
		}
		if _, err := s.Step(tEnd); err != nil {
			return err
		}
	}
	return nil
}
