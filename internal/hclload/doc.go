// Package hclload is the HCL implementation of config.Loader.
//
// A definition is one or more .hcl files. Blocks may be spread across files in
// a directory; they are merged in lexical file order.
//
//	workflow "release" {
//	  on                 = ["push", "workflow_dispatch"]
//	  required           = ["lint", "test", "publish"]
//	  protected_branches = ["main"]
//	  env = { REPO = "${run.repository}" }
//	}
//
//	lookup "arch" {
//	  values = { amd64 = "x86_64", arm64 = "aarch64" }
//	}
//
//	job "build" {
//	  needs = ["lint"]
//	  need "test" { policy = "any_succeeded" }
//	  matrix {
//	    axis "platform" { values = ["amd64", "arm64"] }
//	  }
//	  step "compile" {
//	    run = "make build ARCH=${lookup.arch[matrix.platform]}"
//	  }
//	}
//
// Gate attributes (`if`) are native HCL expressions; `run`, `env` values and
// `with` inputs are templates rendered per instance by the matrix package.
package hclload
