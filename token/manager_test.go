package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func hs256Config() Config {
	return Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authkernel-test",
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	manager, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return manager
}

func TestIssuePairRoundTrip(t *testing.T) {
	manager := newTestManager(t)

	pair, err := manager.IssuePair("user-1", "jane@example.com", []string{"user:read", "user:write"})
	if err != nil {
		t.Fatalf("IssuePair error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if !pair.AccessExpiresAt.Before(pair.RefreshExpiresAt) {
		t.Fatal("access expiry must precede refresh expiry")
	}

	result := manager.Validate(pair.AccessToken, TypeAccess)
	if !result.Valid {
		t.Fatalf("access validation failed: %s", result.Reason)
	}
	if result.Claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", result.Claims.Subject)
	}
	if result.Claims.Email != "jane@example.com" {
		t.Fatalf("unexpected email %q", result.Claims.Email)
	}
	if len(result.Claims.Permissions) != 2 {
		t.Fatalf("unexpected permissions %v", result.Claims.Permissions)
	}
}

func TestRefreshTokenCarriesNoPermissions(t *testing.T) {
	manager := newTestManager(t)

	pair, err := manager.IssuePair("user-1", "jane@example.com", []string{"user:read"})
	if err != nil {
		t.Fatalf("IssuePair error: %v", err)
	}

	result := manager.Validate(pair.RefreshToken, TypeRefresh)
	if !result.Valid {
		t.Fatalf("refresh validation failed: %s", result.Reason)
	}
	if len(result.Claims.Permissions) != 0 {
		t.Fatalf("refresh token must not carry permissions, got %v", result.Claims.Permissions)
	}
}

func TestValidateWrongType(t *testing.T) {
	manager := newTestManager(t)

	pair, err := manager.IssuePair("user-1", "", nil)
	if err != nil {
		t.Fatalf("IssuePair error: %v", err)
	}

	result := manager.Validate(pair.RefreshToken, TypeAccess)
	if result.Valid || result.Reason != ReasonWrongType {
		t.Fatalf("expected wrong_type, got %+v", result)
	}
}

func TestValidateExpired(t *testing.T) {
	manager := newTestManager(t)
	past := manager.WithClock(func() time.Time {
		return time.Now().Add(-time.Hour)
	})

	access, _, err := past.IssueAccess("user-1", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	result := manager.Validate(access, TypeAccess)
	if result.Valid || result.Reason != ReasonExpired {
		t.Fatalf("expected expired, got %+v", result)
	}
}

func TestValidateUsesInjectedClock(t *testing.T) {
	at := time.Date(2021, 3, 14, 9, 30, 0, 0, time.UTC)
	manager := newTestManager(t).WithClock(func() time.Time { return at })

	access, _, err := manager.IssueAccess("user-1", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	// Issuance and validation share the clock, so a token minted at a
	// fixed past instant is still valid at that instant.
	result := manager.Validate(access, TypeAccess)
	if !result.Valid {
		t.Fatalf("token valid at the injected now must validate, got reason=%s", result.Reason)
	}

	at = at.Add(16 * time.Minute)
	result = manager.Validate(access, TypeAccess)
	if result.Valid || result.Reason != ReasonExpired {
		t.Fatalf("expected expired after advancing the clock, got %+v", result)
	}
}

func TestValidateMalformed(t *testing.T) {
	manager := newTestManager(t)

	for _, tok := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		result := manager.Validate(tok, TypeAccess)
		if result.Valid || result.Reason != ReasonMalformed {
			t.Fatalf("token %q: expected malformed, got %+v", tok, result)
		}
	}
}

func TestValidateBadSignature(t *testing.T) {
	manager := newTestManager(t)

	other, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "authkernel-test",
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	access, _, err := other.IssueAccess("user-1", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	result := manager.Validate(access, TypeAccess)
	if result.Valid || result.Reason != ReasonSignature {
		t.Fatalf("expected signature reject, got %+v", result)
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}

	manager, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	access, _, err := manager.IssueAccess("user-9", "ed@example.com", []string{"report:run"})
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	if parts := strings.Split(access, "."); len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", access)
	}

	result := manager.Validate(access, TypeAccess)
	if !result.Valid {
		t.Fatalf("validation failed: %s", result.Reason)
	}
}

func TestNewManagerRejectsInvertedTTLs(t *testing.T) {
	cfg := hs256Config()
	cfg.AccessTTL = cfg.RefreshTTL
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected error when access TTL is not below refresh TTL")
	}
}

func TestNewManagerRejectsUnknownKeyID(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}

	_, err = NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		KeyID:         "primary",
		VerifyKeys:    map[string][]byte{"other": pub},
	})
	if err == nil {
		t.Fatal("expected error for KeyID missing from VerifyKeys")
	}
}
