// Package graph provides the static dependency graph between job definitions.
//
// # Why Graph Package Exists
//
// The planner validates `needs` references and rejects cycles before any job
// instance exists, and the scheduler later asks which definitions depend on a
// definition that just became terminal. Both questions are answered here over
// job names, not instances: a matrix job is one node regardless of how many
// instances it expands to.
//
// # Determinism
//
// Nodes remember insertion order. TopologicalOrder, Dependencies and
// Dependents all return results in that order, so two plans compiled from the
// same document are identical.
//
// # Thread-Safety
//
// All Graph methods are safe for concurrent use. The graph is built once by
// the planner and only read afterwards.
package graph
