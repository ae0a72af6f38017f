// Package odemodel assembles a reduced model into an indexed ODE system.
//
// Every variable gets one position in a single name table, partitioned into
// four contiguous ranges in this order:
//
//   - [Differential]: variables with a rate expression
//   - [Assigned]: variables defined by an assignment rule
//   - [Constant]: compartments, species and parameters with no rule
//   - [AlgebraicPlaceholder]: symbols only algebraic rules determine
//
// All stored expressions reference variables by index. The Jacobian and
// parameter sensitivity matrices are built on demand and can be freed and
// rebuilt without touching the rate expressions.
//
// # Sharing
//
// A [Model] is read-only once built, apart from constructing or freeing its
// matrices. Any number of simulation runs may share one model as long as
// nobody rebuilds a matrix while they run.
package odemodel
