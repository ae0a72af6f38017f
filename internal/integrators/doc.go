// Package integrators provides explicit Runge-Kutta engines for
// y' = f(t, y) with optional forward sensitivities.
//
// # Methods
//
//   - euler: first order, fixed step
//   - rk4: classical fourth order, fixed step
//   - rk45: Dormand-Prince 5(4), adaptive step under AbsTol/RelTol
//
// A [Solver] drives any [Method]. When a [Problem] has NSens > 0 the engine
// integrates s' = J s + df/dp next to the state, using the supplied
// Jacobian or a [FiniteDifference] approximation when none is given.
package integrators
