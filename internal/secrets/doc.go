// Package secrets is the credential broker. It resolves named opaque secrets
// from external stores at execution time and redacts their values from every
// byte stream that is captured or persisted.
//
// A required secret that cannot be resolved is reported as a *MissingError
// before any step runs; it is never replaced by an empty value.
package secrets
