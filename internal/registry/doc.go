// Package registry models the container image registry the publisher writes
// to.
//
// Every tag written through Registry is write-once except through Tag, which
// is reserved for the single mutable floating pointer. Re-pushing identical
// content under an existing tag is a no-op, so retried writes are safe;
// pushing different content is ErrImmutableTag.
//
// Implementations:
//
//   - Memory: an in-process registry with deterministic digests.
//   - Docker: drives `docker buildx` through a Commander.
//   - ledger.Registry (subpackage): records write-once tags in Postgres.
package registry
