// Package gate implements the conditional gate evaluator.
//
// A gate is a small typed expression AST. It is built by lowering a parsed HCL
// expression (FromHCL, Parse) and evaluated with Eval against a Context that
// carries the immutable run, the instance's matrix values and the terminal
// results of already-resolved upstream jobs. Evaluation is deterministic and
// side-effect free.
//
// Supported syntax:
//
//	event == "push" && ref_name == "main"
//	matrix.platform != "arm64" || !(needs.lint.result == "success")
//	startswith(ref, "refs/tags/") || contains(ref_name, "release")
//
// A missing gate is represented by a nil Expr and always holds.
package gate
