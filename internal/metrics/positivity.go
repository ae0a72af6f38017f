package metrics

// Positivity is the fraction of observed rows in which none of the first n
// values dropped below -tolerance.
type Positivity struct {
	name       string
	n          int
	tolerance  float64
	violations int
	samples    int
}

func NewPositivity(n int, tolerance float64) *Positivity {
	return &Positivity{
		name:      "positivity",
		n:         n,
		tolerance: tolerance,
	}
}

func (p *Positivity) Name() string {
	return p.name
}

func (p *Positivity) Observe(_ float64, values []float64) {
	p.samples++
	for _, v := range values[:min(p.n, len(values))] {
		if v < -p.tolerance {
			p.violations++
			break
		}
	}
}

func (p *Positivity) Value() float64 {
	if p.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(p.violations)/float64(p.samples)
}

func (p *Positivity) Reset() {
	p.violations = 0
	p.samples = 0
}
