// Package actions is the registry of reusable, versioned step actions.
//
// A step that sets `uses = "owner/name@vN"` is dispatched to the Handler
// registered under that reference. Built-in actions live in the top-level
// modules directory; each module implements Module and registers its actions
// when the application starts. Registering the same reference twice panics,
// because it can only be a programming error.
//
// Action inputs are typed. Each Definition declares its inputs with a cty
// type; Bind converts the rendered `with` values to those types, applies
// defaults and rejects unknown or missing inputs before the handler runs.
package actions
