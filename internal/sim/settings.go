package sim

import (
	"fmt"
	"math"
)

// Settings configures one run.
type Settings struct {
	EndTime float64
	Steps   int
	// OutputTimes replaces the EndTime/Steps grid when set. Time 0 is
	// prepended when missing.
	OutputTimes []float64

	Method      string
	Backend     string
	AbsTol      float64
	RelTol      float64
	MaxSteps    int
	InitialStep float64

	UseJacobian bool

	Sensitivity bool
	// SensParameters names the constants to differentiate by; empty means
	// every constant.
	SensParameters []string

	Adjoint bool
	// AdjointWeights are the coefficients of the objective sum w_i y_i(T)
	// per differential variable; missing names weigh 1.
	AdjointWeights map[string]float64

	HaltOnEvent          bool
	HaltOnSteadyState    bool
	SteadyStateThreshold float64

	// Overrides replace initial values by name.
	Overrides map[string]float64
}

func DefaultSettings() Settings {
	return Settings{
		EndTime:              10,
		Steps:                100,
		Method:               "rk45",
		Backend:              "auto",
		AbsTol:               1e-12,
		RelTol:               1e-6,
		MaxSteps:             10000,
		UseJacobian:          true,
		SteadyStateThreshold: 1e-9,
	}
}

func (s Settings) Validate() error {
	if len(s.OutputTimes) == 0 {
		if !(s.EndTime > 0) || math.IsInf(s.EndTime, 0) {
			return fmt.Errorf("%w: end time must be positive, got %g", ErrSettings, s.EndTime)
		}
		if s.Steps <= 0 {
			return fmt.Errorf("%w: steps must be positive, got %d", ErrSettings, s.Steps)
		}
	}
	prev := math.Inf(-1)
	for _, t := range s.OutputTimes {
		if t < 0 || t <= prev || math.IsNaN(t) {
			return fmt.Errorf("%w: output times must be non-negative and increasing", ErrSettings)
		}
		prev = t
	}
	if s.AbsTol < 0 || s.RelTol < 0 {
		return fmt.Errorf("%w: tolerances must not be negative", ErrSettings)
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("%w: max steps must not be negative", ErrSettings)
	}
	if s.SteadyStateThreshold < 0 {
		return fmt.Errorf("%w: steady-state threshold must not be negative", ErrSettings)
	}
	return nil
}

// Outputs returns the output time grid, starting at 0.
func (s Settings) Outputs() []float64 {
	if len(s.OutputTimes) > 0 {
		out := make([]float64, 0, len(s.OutputTimes)+1)
		if s.OutputTimes[0] != 0 {
			out = append(out, 0)
		}
		return append(out, s.OutputTimes...)
	}
	out := make([]float64, s.Steps+1)
	for i := range out {
		out[i] = s.EndTime * float64(i) / float64(s.Steps)
	}
	out[s.Steps] = s.EndTime
	return out
}

func (s Settings) sensitivityEnabled() bool {
	return s.Sensitivity || s.Adjoint
}
