// Package config defines the format-agnostic workflow definition model along
// with the Loader interface implemented by the HCL and YAML front ends.
//
// The `config.Workflow` is the single source of truth for the planner. Its
// templates and gate expressions are kept as unevaluated hcl.Expression
// values; rendering happens per job instance once matrix values are known.
package config
