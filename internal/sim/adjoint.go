package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/rnsim/internal/compute"
	"github.com/san-kum/rnsim/internal/diag"
	"github.com/san-kum/rnsim/internal/integrators"
)

// trajectory stores forward states and derivatives for cubic Hermite
// interpolation during the backward pass.
type trajectory struct {
	t []float64
	y [][]float64
	f [][]float64
}

func (tr *trajectory) reset() {
	tr.t, tr.y, tr.f = tr.t[:0], tr.y[:0], tr.f[:0]
}

func (tr *trajectory) add(t float64, y, f []float64) {
	tr.t = append(tr.t, t)
	tr.y = append(tr.y, append([]float64(nil), y...))
	tr.f = append(tr.f, append([]float64(nil), f...))
}

func (tr *trajectory) at(t float64, out []float64) {
	n := len(tr.t)
	k := sort.SearchFloat64s(tr.t, t)
	switch {
	case n == 0:
		return
	case k == 0:
		copy(out, tr.y[0])
		return
	case k >= n:
		copy(out, tr.y[n-1])
		return
	}
	t0, t1 := tr.t[k-1], tr.t[k]
	h := t1 - t0
	if h == 0 {
		copy(out, tr.y[k])
		return
	}
	u := (t - t0) / h
	u2, u3 := u*u, u*u*u
	h00 := 2*u3 - 3*u2 + 1
	h10 := u3 - 2*u2 + u
	h01 := -2*u3 + 3*u2
	h11 := u3 - u2
	y0, y1, f0, f1 := tr.y[k-1], tr.y[k], tr.f[k-1], tr.f[k]
	for i := range out {
		out[i] = h00*y0[i] + h10*h*f0[i] + h01*y1[i] + h11*h*f1[i]
	}
}

func (s *Instance) trajPoint(t float64, y []float64) {
	f := make([]float64, len(y))
	if len(y) > 0 {
		s.rhs(t, y, f)
	}
	s.traj.add(t, y, f)
}

// ResetAdjointPhase switches a completed forward run to the backward pass.
// The adjoint starts from the objective weights at the final time and the
// quadrature from zero.
func (s *Instance) ResetAdjointPhase() error {
	if s.closed {
		return ErrClosed
	}
	if !s.settings.Adjoint || s.sens == nil {
		s.store.Record(diag.Error, diag.CodeAdjoint, "%s: adjoint analysis is not enabled", s.model.ID)
		return fmt.Errorf("%w: adjoint analysis not enabled", ErrAdjointPhase)
	}
	if s.phase != Forward || s.state != Completed {
		s.store.Record(diag.Error, diag.CodeAdjoint, "%s: adjoint phase needs a completed forward run (state %s)", s.model.ID, s.state)
		return fmt.Errorf("%w: forward run not completed", ErrAdjointPhase)
	}

	neq, ns := s.model.NEq, len(s.sensIdx)
	lambda := make([]float64, neq)
	for i := range lambda {
		lambda[i] = 1
	}
	for name, w := range s.settings.AdjointWeights {
		i, ok := s.model.Lookup(name)
		if !ok || i >= neq {
			s.store.Record(diag.Error, diag.CodeAdjoint, "adjoint weight for %s, which is not a differential variable", name)
			return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
		lambda[i] = w
	}
	s.rs.Adjoint = lambda
	s.rs.Quadrature = make([]float64, ns)

	e, err := integrators.New(s.settings.Method)
	if err != nil {
		return err
	}
	z0 := make([]float64, neq+ns)
	copy(z0, lambda)
	p := integrators.Problem{
		N:           neq + ns,
		RHS:         s.adjointRHS,
		AbsTol:      s.settings.AbsTol,
		RelTol:      s.settings.RelTol,
		MaxSteps:    s.settings.MaxSteps,
		InitialStep: s.settings.InitialStep,
	}
	if err := e.Init(p, s.rs.Time, z0); err != nil {
		s.store.Record(diag.Error, diag.CodeAdjoint, "%s: %v", s.model.ID, err)
		return err
	}
	s.adjoint = e
	s.phase = Backward
	s.next = len(s.outputs) - 2
	s.state = Ready
	logrus.Debugf("sim: %s: adjoint phase from t=%g over %d stored points", s.model.ID, s.rs.Time, len(s.traj.t))
	return nil
}

// adjointRHS is lambda' = -J^T lambda, q' = -P^T lambda along the
// interpolated forward trajectory.
func (s *Instance) adjointRHS(t float64, z, dz []float64) {
	neq := s.model.NEq
	lambda := z[:neq]
	y := s.ybuf
	s.traj.at(t, y)

	if s.jac != nil {
		s.jacobian(t, y, nil, s.jacBuf)
	} else {
		s.rhs(t, y, s.fbuf)
		s.fd.Jacobian(s.rhs, t, y, s.fbuf, s.jacBuf)
	}
	compute.MatTVecMul(s.jacBuf, lambda, dz[:neq])

	s.sensRHS(t, y, s.parBuf)
	compute.MatTVecMul(s.parBuf, lambda, dz[neq:])

	for i := range dz {
		dz[i] = -dz[i]
	}
}

func (s *Instance) adjointStep() bool {
	s.state = Stepping
	target := s.outputs[s.next]
	if err := s.adjoint.IntegrateToEnd(target); err != nil {
		s.err = &StepError{Step: s.step, Time: s.rs.Time, Wrapped: err}
		s.state = Failed
		s.store.Record(diag.Error, diag.CodeAdjoint, "%s: %v", s.model.ID, s.err)
		return false
	}
	neq := s.model.NEq
	z := s.adjoint.Values()
	copy(s.rs.Adjoint, z[:neq])
	copy(s.rs.Quadrature, z[neq:])
	s.rs.Time = target
	s.next--
	s.step++
	if s.next < 0 {
		s.state = Completed
	}
	return true
}

// AdjointSensitivities returns d G / d p_j for G = sum w_i y_i(T) once the
// backward pass has completed.
func (s *Instance) AdjointSensitivities() ([]float64, error) {
	if s.phase != Backward || s.state != Completed {
		return nil, fmt.Errorf("%w: backward pass not completed", ErrAdjointPhase)
	}
	out := append([]float64(nil), s.rs.Quadrature...)
	for j := range out {
		for i, l := range s.rs.Adjoint {
			out[j] += l * s.s0[i][j]
		}
	}
	return out, nil
}

// Adjoint returns the current adjoint values, nil outside the backward pass.
func (s *Instance) Adjoint() []float64 { return s.rs.Adjoint }
