package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// RateNorm averages the Euclidean norm of the difference quotient of the
// first n values between consecutive rows.
type RateNorm struct {
	name    string
	n       int
	started bool
	prev    []float64
	prevT   float64
	delta   []float64
	sum     float64
	samples int
}

func NewRateNorm(n int) *RateNorm {
	return &RateNorm{
		name:  "rate_norm",
		n:     n,
		prev:  make([]float64, n),
		delta: make([]float64, n),
	}
}

func (r *RateNorm) Name() string {
	return r.name
}

func (r *RateNorm) Observe(t float64, values []float64) {
	cur := values[:r.n]
	if r.started && t != r.prevT {
		floats.SubTo(r.delta, cur, r.prev)
		r.sum += floats.Norm(r.delta, 2) / math.Abs(t-r.prevT)
		r.samples++
	}
	copy(r.prev, cur)
	r.prevT = t
	r.started = true
}

func (r *RateNorm) Value() float64 {
	if r.samples == 0 {
		return 0
	}
	return r.sum / float64(r.samples)
}

func (r *RateNorm) Reset() {
	r.started = false
	r.sum = 0
	r.samples = 0
}
