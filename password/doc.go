// Package password implements credential hashing, verification, and
// strength assessment.
//
// # Output format
//
// Digests are bcrypt strings ($2a$/$2b$ prefix) carrying the cost and a
// random per-call salt, so hashing the same plaintext twice never yields
// the same digest. The accepted cost range is 10–15.
//
// [Hasher.Verify] reports only a boolean: malformed digests and internal
// failures are indistinguishable from a wrong password, which prevents
// oracle-style enumeration of failure causes.
//
// # Architecture boundaries
//
// This package owns hashing, verification, and the ordered strength policy.
// When and whether to re-hash, and how failures surface to callers, is the
// Engine's concern.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive digests.
//   - Import any other authkernel package.
//   - Log plaintext passwords.
package password
