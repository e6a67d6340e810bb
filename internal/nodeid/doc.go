/*
Package nodeid provides a structured representation for job instance
identifiers, based on the canonical format `job` or `job[index]`.

A non-parametric job has exactly one instance and no index. Instances of a
matrix job are numbered from zero in Cartesian-product order, e.g. `build[3]`.

This package centralizes all formatting and parsing of instance identifiers
so that logs, persisted records and status endpoints agree on one spelling.
*/
package nodeid
