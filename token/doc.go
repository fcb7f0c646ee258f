// Package token issues and validates the signed, time-bounded credential
// tokens used by the authentication engine.
//
// Tokens come in matched pairs: a short-lived access token embedding a
// snapshot of the subject's permission names, and a long-lived refresh
// token carrying identity only. The "typ" claim discriminates the two so a
// refresh token can never be presented where an access token is expected.
//
// # Validation contract
//
// [Manager.Validate] never returns an error. Every outcome collapses into a
// [Validation] whose [Reason] distinguishes malformed input, an invalid
// signature, an expired token, and a wrong token type — callers use the
// reason to decide between the refresh flow and a hard reject.
//
// # What this package must NOT do
//
//   - Persist tokens or talk to Redis; lifecycle is the session package's job.
//   - Expose a way to sign arbitrary claims.
//   - Import any other authkernel package.
package token
