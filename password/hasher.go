package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinCost is the lowest accepted bcrypt cost factor.
	MinCost = 10
	// MaxCost is the highest accepted bcrypt cost factor.
	MaxCost = 15

	// maxPasswordBytes mirrors bcrypt's 72-byte input limit.
	maxPasswordBytes = 72
)

// Config holds hashing parameters.
type Config struct {
	Cost int
}

// Hasher produces and verifies salted bcrypt digests. A Hasher is immutable
// after construction and safe for concurrent use.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a ready Hasher. Costs outside the
// [MinCost, MaxCost] range are rejected.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Cost < MinCost || cfg.Cost > MaxCost {
		return nil, errors.New("password cost must be between 10 and 15")
	}
	return &Hasher{config: cfg}, nil
}

// Hash produces a bcrypt digest of plaintext. Every call salts independently,
// so repeated calls with the same input yield different digests.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("password must not be empty")
	}
	if len(plaintext) > maxPasswordBytes {
		return "", errors.New("password exceeds 72 bytes")
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.config.Cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed digest or an
// internal bcrypt failure reports false; callers never learn why a
// verification failed.
func (h *Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// NeedsRehash reports whether digest was produced with a cost below the
// configured one. Unreadable digests report false; the next verification
// rejects them anyway.
func (h *Hasher) NeedsRehash(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return false
	}
	return cost < h.config.Cost
}
