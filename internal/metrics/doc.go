// Package metrics provides per-row observers for simulation runs. Each
// metric satisfies sim.Metric and is fed every recorded row.
package metrics
