package password

import "testing"

func testPolicy(t *testing.T) *Policy {
	t.Helper()

	policy, err := NewPolicy(0, 0)
	if err != nil {
		t.Fatalf("NewPolicy error: %v", err)
	}
	return policy
}

func TestAssessAcceptsStrongPassword(t *testing.T) {
	policy := testPolicy(t)

	result := policy.Assess("Tr1cky&Phrase")
	if !result.Valid {
		t.Fatalf("expected valid, got reason %q", result.Reason)
	}
}

func TestAssessRuleOrderIsDeterministic(t *testing.T) {
	policy := testPolicy(t)

	cases := []struct {
		name     string
		password string
		reason   string
	}{
		{"too short", "Ab1!", "password is too short"},
		{"missing upper", "tr1cky&phrase", "password needs an uppercase letter"},
		{"missing lower", "TR1CKY&PHRASE", "password needs a lowercase letter"},
		{"missing digit", "Tricky&Phrase", "password needs a digit"},
		{"missing special", "Tr1ckyPhrase", "password needs a special character"},
		{"weak list", "P@ssw0rd", "password is too common"},
		{"repeated run", "Tr1ckyyyy&Xz", "password repeats the same character too often"},
		{"ascending digits", "Tp&x1234abcd", "password contains a numeric sequence"},
		{"descending digits", "Tp&x9876abcd", "password contains a numeric sequence"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := policy.Assess(tc.password)
			if result.Valid {
				t.Fatalf("expected %q to fail", tc.password)
			}
			if result.Reason != tc.reason {
				t.Fatalf("got reason %q, want %q", result.Reason, tc.reason)
			}
		})
	}
}

func TestAssessRepeatRunBoundary(t *testing.T) {
	policy := testPolicy(t)

	// Two of the same character in a row pass; three trip the check.
	if result := policy.Assess("Tr1ckyy&Xzw"); !result.Valid {
		t.Fatalf("double character rejected: %q", result.Reason)
	}
	result := policy.Assess("Tr1ckyyy&Xz")
	if result.Valid {
		t.Fatal("expected triple character to fail")
	}
	if result.Reason != "password repeats the same character too often" {
		t.Fatalf("got reason %q", result.Reason)
	}
}

func TestAssessShortDigitRunsAllowed(t *testing.T) {
	policy := testPolicy(t)

	result := policy.Assess("Tp&x123abcd")
	if !result.Valid {
		t.Fatalf("three-digit run rejected: %q", result.Reason)
	}
}

func TestNewPolicyRejectsInvertedBounds(t *testing.T) {
	if _, err := NewPolicy(20, 10); err == nil {
		t.Fatal("expected error for inverted bounds")
	}
}
