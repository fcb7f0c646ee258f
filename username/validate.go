package username

import "strings"

// Validate checks handle against the full rule set and reports every
// violated rule, not just the first.
func Validate(handle string) ValidationResult {
	var violations []string

	if len(handle) < MinLength {
		violations = append(violations, "too_short")
	}
	if len(handle) > MaxLength {
		violations = append(violations, "too_long")
	}
	if !validCharset(handle) {
		violations = append(violations, "invalid_characters")
	}
	if hasBadSeparators(handle) {
		violations = append(violations, "separator_placement")
	}
	if _, reserved := reservedHandles[strings.ToLower(handle)]; reserved {
		violations = append(violations, "reserved")
	}

	if len(violations) > 0 {
		return ValidationResult{
			Message:    "username violates " + strings.Join(violations, ", "),
			Violations: violations,
		}
	}
	return ValidationResult{Valid: true, Message: "ok"}
}

func validCharset(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
		default:
			return false
		}
	}
	return len(s) > 0
}

func hasBadSeparators(s string) bool {
	if s == "" {
		return false
	}
	if isSeparator(rune(s[0])) || isSeparator(rune(s[len(s)-1])) {
		return true
	}
	var prev rune
	for i, r := range s {
		if i > 0 && isSeparator(r) && isSeparator(prev) {
			return true
		}
		prev = r
	}
	return false
}

func isSeparator(r rune) bool {
	return r == '.' || r == '-'
}
