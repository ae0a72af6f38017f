package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrUnknownVariable indicates a weight for a name the model does not have.
var ErrUnknownVariable = errors.New("metrics: unknown variable")

// NameTable resolves variable names to value positions.
type NameTable interface {
	Lookup(name string) (int, bool)
	Total() int
}

func weightVector(names NameTable, weights map[string]float64) ([]float64, error) {
	w := make([]float64, names.Total())
	for name, v := range weights {
		i, ok := names.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
		w[i] = v
	}
	return w, nil
}

// Conservation averages the weighted total sum w_i y_i over the run.
type Conservation struct {
	name    string
	weights []float64
	samples int
	sum     float64
}

func NewConservation(names NameTable, weights map[string]float64) (*Conservation, error) {
	w, err := weightVector(names, weights)
	if err != nil {
		return nil, err
	}
	return &Conservation{name: "conserved_total", weights: w}, nil
}

func (c *Conservation) Name() string { return c.name }

func (c *Conservation) Observe(_ float64, values []float64) {
	c.sum += floats.Dot(c.weights, values)
	c.samples++
}

func (c *Conservation) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *Conservation) Reset() {
	c.sum = 0
	c.samples = 0
}

// ConservationDrift is the largest relative change of the weighted total
// from its first observed value.
type ConservationDrift struct {
	name     string
	weights  []float64
	initial  float64
	maxDrift float64
	samples  int
}

func NewConservationDrift(names NameTable, weights map[string]float64) (*ConservationDrift, error) {
	w, err := weightVector(names, weights)
	if err != nil {
		return nil, err
	}
	return &ConservationDrift{name: "conservation_drift", weights: w}, nil
}

func (c *ConservationDrift) Name() string { return c.name }

func (c *ConservationDrift) Observe(_ float64, values []float64) {
	total := floats.Dot(c.weights, values)
	if c.samples == 0 {
		c.initial = total
	}
	c.samples++

	if c.initial != 0 {
		drift := math.Abs(total-c.initial) / math.Abs(c.initial)
		c.maxDrift = math.Max(c.maxDrift, drift)
	}
}

func (c *ConservationDrift) Value() float64 {
	return c.maxDrift
}

func (c *ConservationDrift) Reset() {
	c.initial = 0
	c.maxDrift = 0
	c.samples = 0
}
