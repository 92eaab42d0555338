// Package orchestrator drives the batched control loop.
//
// One goroutine cycles through three states. Settling free-runs physics
// after a reset. Commanding checks liveness and cancellation, snapshots
// the world and asks the task policy for new targets. Controlling runs the
// IK controller for a fixed number of physics ticks and records frames.
// When an episode's macro-step budget is spent every environment is
// evaluated, its episode kept or discarded, and the scene reset.
//
// Shutdown runs exactly once on every exit path: recorders are finalized,
// the dataset closed and published, and the simulator closed.
package orchestrator
