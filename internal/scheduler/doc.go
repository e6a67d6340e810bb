// Package scheduler drives a compiled plan to completion. It computes the
// readiness of every JobRun, dispatches ready instances to a Runner, and
// propagates failure and skip outcomes along `needs` edges.
//
// # How It Works
//
// Scheduling is event-driven. A job definition is evaluated exactly once, at
// the moment its last dependency settles (every instance of it is terminal):
//
//  1. Each `needs` edge is checked against the dependency's full instance set
//     with the edge's JoinPolicy and SkipPolicy.
//  2. If any edge is unsatisfied every instance is skipped (reason upstream),
//     or, for the aggregator, failed.
//  3. Otherwise each instance's gate is evaluated. False skips the instance
//     (reason gate); an evaluation error fails only that instance.
//  4. Remaining instances are dispatched. They acquire a slot from the
//     Capacity collaborator, run, and report back through a completion
//     channel consumed by the coordinating goroutine.
//
// The scheduler itself imposes no concurrency limit. Cancelling the run's
// context cancels every non-terminal instance.
//
// # Relationship with Other Components
//
//   - **Planner:** produces the Plan, including the aggregator job.
//   - **Runner:** executes one instance, usually a *step.Executor.
//   - **Recorder:** observes every transition for persistence and live status.
package scheduler
