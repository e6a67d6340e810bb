// Package app wires the loader, planner, step executor and scheduler into a
// runnable application, together with its backing stores, notifier and
// status server. It is decoupled from any specific entrypoint like the CLI.
package app
