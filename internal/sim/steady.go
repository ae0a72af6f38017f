package sim

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/rnsim/internal/compute"
	"github.com/san-kum/rnsim/internal/diag"
)

// RateMagnitude is mean + standard deviation of the absolute rates at the
// current values.
func (s *Instance) RateMagnitude() float64 {
	neq := s.model.NEq
	if neq == 0 {
		return 0
	}
	s.updateAssignments()
	rates := make([]float64, neq)
	compute.EvalAll(s.rates, s.rs.Values, s.rs.Time, rates)
	for i, r := range rates {
		rates[i] = math.Abs(r)
	}
	if neq == 1 {
		return rates[0]
	}
	mean, std := stat.MeanStdDev(rates, nil)
	return mean + std
}

// CheckSteadyState reports whether the rates have fallen below the
// configured threshold, halting the run when the settings ask for it.
func (s *Instance) CheckSteadyState() bool {
	if s.closed || s.state == Uninitialized {
		return false
	}
	mag := s.RateMagnitude()
	if !(mag < s.settings.SteadyStateThreshold) {
		s.rs.SteadyState = false
		return false
	}
	if !s.rs.SteadyState {
		s.store.Record(diag.Message, diag.CodeSteadyState,
			"%s: steady state at t=%g (rate magnitude %g)", s.model.ID, s.rs.Time, mag)
	}
	s.rs.SteadyState = true
	if s.state != Completed && s.state != Failed {
		s.state = SteadyState
	}
	if s.settings.HaltOnSteadyState {
		s.halted = true
	}
	return true
}
