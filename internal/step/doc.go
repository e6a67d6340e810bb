// Package step is the step executor. It runs one job instance's steps strictly
// in order inside a single execution context.
//
// For each step the executor, in order:
//
//  1. skips it if an earlier step failed, or if its own gate is false
//  2. merges the environment layers, highest precedence last:
//     process default, workflow, job, step, then resolved secrets
//  3. resolves the step's secrets, failing with CredentialMissing before the
//     runner is invoked
//  4. invokes the command or action runner under the step timeout, retrying
//     up to the declared count
//  5. captures stdout and stderr through a redactor that masks every secret
//     value the instance has seen
//
// A failed step marks every later step skipped and the instance failed, or
// timed out when a deadline expired. Side effects of the failed step are not
// rolled back.
package step
