package password

import (
	"errors"
	"strings"
	"unicode"
)

var errInvalidPolicyBounds = errors.New("invalid password length bounds")

const (
	defaultMinLength = 8
	defaultMaxLength = 64

	// repeatRunLimit is the run length at which a repeated character
	// trips the check; runs of up to repeatRunLimit-1 pass.
	repeatRunLimit = 3
	// sequenceLimit is the longest allowed run of sequential digits;
	// one more digit trips the check.
	sequenceLimit = 3
)

// weakPasswords are rejected outright regardless of composition.
var weakPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"p@ssw0rd":    {},
	"p@ssword1":   {},
	"pa$$w0rd":    {},
	"password123": {},
	"passw0rd":    {},
	"12345678":    {},
	"123456789":   {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"letmein":     {},
	"iloveyou":    {},
	"welcome1":    {},
	"admin123":    {},
	"abc12345":    {},
}

// Strength is the outcome of a policy assessment. Reason holds the first
// failing rule; rules are evaluated in a fixed order so the reported reason
// is deterministic.
type Strength struct {
	Valid  bool
	Reason string
}

// Policy enforces composition rules on candidate passwords. The zero value
// is not usable; construct with NewPolicy.
type Policy struct {
	minLength int
	maxLength int
}

// NewPolicy returns a Policy with the given length bounds. Zero values fall
// back to the defaults (8 and 64).
func NewPolicy(minLength, maxLength int) (*Policy, error) {
	if minLength == 0 {
		minLength = defaultMinLength
	}
	if maxLength == 0 {
		maxLength = defaultMaxLength
	}
	if minLength < 1 || maxLength < minLength {
		return nil, errInvalidPolicyBounds
	}
	if maxLength > maxPasswordBytes {
		maxLength = maxPasswordBytes
	}
	return &Policy{minLength: minLength, maxLength: maxLength}, nil
}

// Assess runs the ordered rule set against plaintext and returns the first
// violation, or a valid result when every rule passes.
func (p *Policy) Assess(plaintext string) Strength {
	if len(plaintext) < p.minLength {
		return failed("password is too short")
	}
	if len(plaintext) > p.maxLength {
		return failed("password is too long")
	}
	if !containsClass(plaintext, unicode.IsUpper) {
		return failed("password needs an uppercase letter")
	}
	if !containsClass(plaintext, unicode.IsLower) {
		return failed("password needs a lowercase letter")
	}
	if !containsClass(plaintext, unicode.IsDigit) {
		return failed("password needs a digit")
	}
	if !containsSpecial(plaintext) {
		return failed("password needs a special character")
	}
	if _, weak := weakPasswords[strings.ToLower(plaintext)]; weak {
		return failed("password is too common")
	}
	if hasRepeatedRun(plaintext) {
		return failed("password repeats the same character too often")
	}
	if hasDigitSequence(plaintext) {
		return failed("password contains a numeric sequence")
	}
	return Strength{Valid: true}
}

func failed(reason string) Strength {
	return Strength{Reason: reason}
}

func containsClass(s string, class func(rune) bool) bool {
	for _, r := range s {
		if class(r) {
			return true
		}
	}
	return false
}

func containsSpecial(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasRepeatedRun(s string) bool {
	run := 0
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
			if run >= repeatRunLimit {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}
	return false
}

func hasDigitSequence(s string) bool {
	asc, desc := 0, 0
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsDigit(r) && unicode.IsDigit(prev) {
			switch r - prev {
			case 1:
				asc++
				desc = 1
			case -1:
				desc++
				asc = 1
			default:
				asc, desc = 1, 1
			}
			if asc > sequenceLimit || desc > sequenceLimit {
				return true
			}
		} else if unicode.IsDigit(r) {
			asc, desc = 1, 1
		}
		prev = r
	}
	return false
}
