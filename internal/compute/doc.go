// Package compute provides interchangeable evaluation strategies for
// indexed expression trees.
//
//   - tree: walks the tree on every evaluation
//   - closure: compiles the tree once into nested Go closures
//
// Both produce a [Program] with the same signature and the same results; a
// backend only changes evaluation speed:
//
//	backend, _ := compute.ByName("closure")
//	rate, err := backend.Compile(model.Rates[0])
//	dxdt := rate(values, t)
package compute
