package integrators

// RK4 is the classical fixed-step fourth-order Runge-Kutta method.
type RK4 struct {
	k1, k2, k3, k4 []float64
	scratch        []float64
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Name() string   { return "rk4" }
func (r *RK4) Adaptive() bool { return false }
func (r *RK4) Order() int     { return 4 }

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make([]float64, n)
		r.k2 = make([]float64, n)
		r.k3 = make([]float64, n)
		r.k4 = make([]float64, n)
		r.scratch = make([]float64, n)
	}
}

func (r *RK4) Advance(f Deriv, t, h float64, z, out, _ []float64) {
	n := len(z)
	r.ensureScratch(n)

	f(t, z, r.k1)

	for i := 0; i < n; i++ {
		r.scratch[i] = z[i] + h*0.5*r.k1[i]
	}
	f(t+h*0.5, r.scratch, r.k2)

	for i := 0; i < n; i++ {
		r.scratch[i] = z[i] + h*0.5*r.k2[i]
	}
	f(t+h*0.5, r.scratch, r.k3)

	for i := 0; i < n; i++ {
		r.scratch[i] = z[i] + h*r.k3[i]
	}
	f(t+h, r.scratch, r.k4)

	h6 := h / 6.0
	for i := 0; i < n; i++ {
		out[i] = z[i] + h6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
}
