package sim

// Metric observes every recorded row of a run.
type Metric interface {
	Name() string
	Observe(t float64, values []float64)
	Value() float64
	Reset()
}
