// Package matrix expands a job definition into its independent instances.
//
// A job with axes of sizes a1..ak expands into exactly a1*...*ak instances,
// enumerated in axis order with the last axis varying fastest. Every instance
// receives a fully rendered jobrun.Spec: step commands, environment values and
// action inputs are evaluated as HCL templates against three variables:
//
//	matrix.<axis>          the instance's value for that axis
//	lookup.<table>[value]  a configured axis-value to derived-value table
//	run.<field>            id, event, ref, ref_name, sha, short_sha, repository, attempt
//
// Lookup tables are configuration data. Indexing a table with a value it does
// not contain is a definition error for the whole run.
package matrix
