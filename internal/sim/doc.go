// Package sim drives integration runs over an assembled ODE model.
//
// An [Instance] binds one shared model, its own [RunState], a [Settings]
// record and an integration engine. It moves through
//
//	Uninitialized -> Ready -> Stepping -> EventPending | SteadyState | Completed | Failed
//
// and back to Ready on [Instance.Reset]. Each [Instance.IntegrateOneStep]
// advances to the next output time, then checks event triggers for a rising
// edge. Events apply their assignments from one snapshot; delayed events
// keep the values of their trigger time.
//
// # Sensitivities
//
// Forward sensitivities are integrated with the state. With Adjoint set the
// forward pass stores its trajectory, and [Instance.ResetAdjointPhase]
// starts a backward pass whose result is read with
// [Instance.AdjointSensitivities].
//
// # Thread Safety
//
// Instances are NOT thread-safe. Models are read-only once built; use
// [Ensemble] to run many instances over one model in parallel.
package sim
