// Package session provides Redis-backed session storage with token-hash
// lookup, read-time expiry, and atomic refresh rotation.
//
// Sessions are stored as compact binary blobs (see encoder.go). The blob
// ends in a fixed-size tail holding the active flag and timestamps, which
// lets server-side Lua scripts patch a session in place without a
// read-modify-write round trip. Raw tokens never touch Redis; sessions are
// indexed by SHA-256 hashes of the access and refresh tokens.
//
// Expiry is decided at read time from the stored expiresAt, so validity
// does not depend on Redis eviction timing. Key TTLs exist only to reclaim
// storage. Invalidation is terminal: an inactive session can never become
// active again, and rotation of an inactive session's refresh token is
// surfaced as reuse.
package session
