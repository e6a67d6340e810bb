// Package publish implements the atomic multi-platform image publishing
// protocol.
//
//  1. BuildPlatform builds and pushes each platform image under an immutable
//     tag keyed by run and platform.
//  2. Publish composes a manifest list over every platform tag under an
//     immutable run-scoped tag and pushes it.
//  3. The pushed list is inspected and must reference exactly the intended
//     platform images, otherwise a VerificationError halts the protocol.
//     Already pushed immutable tags stay in place.
//  4. Mirrors receive immutable copies, strictly after verification.
//  5. Only when the run's ref is protected, the floating tag is moved to the
//     verified digest. This is the only mutating write and it comes last.
package publish
