// Package planner validates a workflow definition and compiles it into an
// executable Plan.
//
// Compile is all-or-nothing: any definition problem is returned as a
// *config.DefinitionError and no Plan exists, so zero jobs run. On success
// every JobRun of the run already exists, in pending status, including the
// synthetic aggregator whose terminal status is the run's outcome.
package planner
