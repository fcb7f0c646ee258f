// Package username turns a person's name into a unique, human-readable
// account handle.
//
// Generation normalizes both name parts (diacritics stripped, lowercased,
// anything outside [a-z0-9.-] removed), joins them with a dot, and resolves
// collisions with an incrementing numeric suffix. The numeric loop is
// bounded; when it is exhausted a random UUID-derived suffix guarantees
// termination. Final uniqueness is still owned by the persistence layer's
// case-insensitive unique constraint — callers must treat a duplicate-key
// insert as a signal to re-run generation, not as a fatal error.
package username
