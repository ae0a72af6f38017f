package integrators

import "math"

// FiniteDifference approximates Jacobians by forward differences. The zero
// value is ready to use and keeps its scratch buffers between calls.
type FiniteDifference struct {
	ypert, fpert []float64
}

// Jacobian writes the approximation of df/dy at (t, y) into jac, given
// f0 = rhs(t, y), and returns the number of rhs evaluations it made.
func (fd *FiniteDifference) Jacobian(rhs RHS, t float64, y, f0 []float64, jac [][]float64) int {
	n := len(y)
	if len(fd.ypert) != n {
		fd.ypert = make([]float64, n)
		fd.fpert = make([]float64, n)
	}
	copy(fd.ypert, y)
	sqrtEps := math.Sqrt(2.220446049250313e-16)
	for j := 0; j < n; j++ {
		h := sqrtEps * math.Max(math.Abs(y[j]), 1)
		fd.ypert[j] = y[j] + h
		h = fd.ypert[j] - y[j]
		rhs(t, fd.ypert, fd.fpert)
		for i := 0; i < n; i++ {
			jac[i][j] = (fd.fpert[i] - f0[i]) / h
		}
		fd.ypert[j] = y[j]
	}
	return n
}
