package integrators

// Euler is the explicit first-order method. It takes fixed steps.
type Euler struct {
	dz []float64
}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string   { return "euler" }
func (e *Euler) Adaptive() bool { return false }
func (e *Euler) Order() int     { return 1 }

func (e *Euler) Advance(f Deriv, t, h float64, z, out, _ []float64) {
	if len(e.dz) != len(z) {
		e.dz = make([]float64, len(z))
	}
	f(t, z, e.dz)
	for i := range z {
		out[i] = z[i] + h*e.dz[i]
	}
}
