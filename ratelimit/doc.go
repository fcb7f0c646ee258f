// Package ratelimit implements sliding-window abuse detection with
// temporary blocking on a shared Redis counter store.
//
// Failed attempts are timestamped members of a sorted set keyed by
// (scope, endpoint, identifier). Every check and record purges entries
// older than the window before counting, so the window slides with real
// time instead of resetting on fixed boundaries. When the post-purge
// count reaches the configured threshold, the identifier is placed into
// a separate block key with an explicit expiry; while that key exists,
// checks short-circuit without touching the window.
//
// Recording is a single Lua script that purges, adds, counts, and blocks
// atomically. Concurrent callers may overcount by a hair under a race,
// blocking one attempt early; they can never undercount into a silent
// bypass. A successful attempt clears both the window and the block.
package ratelimit
