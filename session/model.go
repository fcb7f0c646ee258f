package session

import (
	"crypto/sha256"
	"time"
)

// Session tracks one issued access/refresh pair as an invalidatable unit.
// Only the SHA-256 hashes of the raw tokens are ever stored; the raw values
// exist nowhere but in the client's hands.
//
// Lifecycle: created on authentication or refresh, touched on use,
// invalidated explicitly (stored, terminal) or expired by time (computed at
// read time, never swept as a correctness mechanism).
type Session struct {
	ID     string
	UserID string

	AccessHash  [32]byte
	RefreshHash [32]byte

	IP        string
	UserAgent string
	Country   string

	Active bool

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
}

// IsValid reports whether the session is usable at the given instant:
// active and not yet past its expiry.
func (s *Session) IsValid(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// IsExpired reports whether the session's expiry has passed, independent of
// the active flag.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// HashToken derives the storage key for a raw token value.
func HashToken(raw string) [32]byte {
	return sha256.Sum256([]byte(raw))
}
