package username

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MinLength and MaxLength bound every handle this package accepts.
	MinLength = 3
	MaxLength = 64

	defaultNumericAttempts = 100
	fallbackSuffixLength   = 10
)

// ErrGenerationExhausted is returned when even the random fallback failed
// to produce an unused handle.
var ErrGenerationExhausted = errors.New("username generation attempts exhausted")

// reservedHandles may never be claimed as account handles.
var reservedHandles = map[string]struct{}{
	"admin":         {},
	"administrator": {},
	"root":          {},
	"system":        {},
	"support":       {},
	"security":      {},
	"superuser":     {},
	"operator":      {},
	"postmaster":    {},
	"noreply":       {},
	"api":           {},
}

// stripMarks decomposes and removes combining marks, turning "Jöhn" into "John".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// ExistsFunc reports whether candidate is already taken. Implementations
// must match case-insensitively.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// ValidationResult is a pure value describing which rules a handle violates.
type ValidationResult struct {
	Valid      bool
	Message    string
	Violations []string
}

// Config tunes handle generation. Zero values fall back to defaults.
type Config struct {
	MaxLength       int
	NumericAttempts int
}

// Resolver generates collision-free handles against an existence check.
type Resolver struct {
	config Config
	exists ExistsFunc
}

// NewResolver returns a Resolver backed by the given existence check.
func NewResolver(cfg Config, exists ExistsFunc) (*Resolver, error) {
	if exists == nil {
		return nil, errors.New("existence check is required")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = MaxLength
	}
	if cfg.MaxLength < MinLength || cfg.MaxLength > MaxLength {
		return nil, errors.New("invalid username max length")
	}
	if cfg.NumericAttempts == 0 {
		cfg.NumericAttempts = defaultNumericAttempts
	}
	if cfg.NumericAttempts < 1 {
		return nil, errors.New("numeric attempts must be positive")
	}
	return &Resolver{config: cfg, exists: exists}, nil
}

// Generate produces an unused handle for the given name. Collisions are
// resolved deterministically: base, base1, base2, … up to the configured
// attempt bound, then a random suffix. The loop is explicit so the
// termination bound stays visible.
func (r *Resolver) Generate(ctx context.Context, firstName, lastName string) (string, error) {
	base := r.baseCandidate(firstName, lastName)

	taken, err := r.exists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("username existence check: %w", err)
	}
	if !taken {
		return base, nil
	}

	for i := 1; i <= r.config.NumericAttempts; i++ {
		candidate := r.withSuffix(base, strconv.Itoa(i))
		taken, err := r.exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("username existence check: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	// Numeric space exhausted; a UUID-derived suffix guarantees termination.
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:fallbackSuffixLength]
	candidate := r.withSuffix(base, suffix)
	taken, err = r.exists(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("username existence check: %w", err)
	}
	if taken {
		return "", ErrGenerationExhausted
	}
	return candidate, nil
}

// baseCandidate builds "first.last", keeping a readable fragment of each
// name part when truncation is needed.
func (r *Resolver) baseCandidate(firstName, lastName string) string {
	first := Normalize(firstName)
	last := Normalize(lastName)

	var base string
	switch {
	case first == "" && last == "":
		base = "user"
	case first == "":
		base = last
	case last == "":
		base = first
	default:
		// Truncate the longer fragment first so neither name disappears.
		budget := r.config.MaxLength - 1
		if len(first)+len(last) > budget {
			firstMax := budget / 2
			if len(first) > firstMax && len(last) > budget-firstMax {
				first = first[:firstMax]
				last = last[:budget-firstMax]
			} else if len(first) > firstMax {
				first = first[:budget-len(last)]
			} else {
				last = last[:budget-len(first)]
			}
		}
		base = first + "." + last
	}

	if len(base) > r.config.MaxLength {
		base = base[:r.config.MaxLength]
	}
	base = strings.Trim(base, ".-")
	if len(base) < MinLength {
		base = (base + "user")[:MinLength+1]
	}
	return base
}

// withSuffix appends suffix to base, truncating base as needed so the
// result stays within the length bound.
func (r *Resolver) withSuffix(base, suffix string) string {
	limit := r.config.MaxLength - len(suffix)
	if len(base) > limit {
		base = strings.Trim(base[:limit], ".-")
	}
	return base + suffix
}

// Normalize lowercases s, strips diacritics, removes every character
// outside [a-z0-9.-], and collapses or trims separators.
func Normalize(s string) string {
	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.ToLower(stripped)

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '_':
			b.WriteRune('.')
		}
	}

	out := collapseSeparators(b.String())
	return strings.Trim(out, ".-")
}

func collapseSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for i, r := range s {
		if (r == '.' || r == '-') && i > 0 && (prev == '.' || prev == '-') {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
