package authkernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/authkernel/authkernel/ratelimit"
)

func TestBlockIdentifierGatesLogin(t *testing.T) {
	env := newTestEngine(t)
	env.seedUser(t, "jane@example.com", "janedoe")

	err := env.engine.BlockIdentifier(context.Background(), "jane@example.com", "login", ratelimit.ScopeUser, 5*time.Minute)
	if err != nil {
		t.Fatalf("BlockIdentifier failed: %v", err)
	}
	event := env.waitAudit(t, "identifier_blocked")
	if event.Metadata["identifier"] != "jane@example.com" || event.Metadata["scope"] != "user" {
		t.Fatalf("unexpected block metadata: %v", event.Metadata)
	}

	if _, err := env.engine.Login(context.Background(), "jane@example.com", testPassword); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited while blocked, got %v", err)
	}

	if err := env.engine.UnblockIdentifier(context.Background(), "jane@example.com", "login", ratelimit.ScopeUser); err != nil {
		t.Fatalf("UnblockIdentifier failed: %v", err)
	}
	env.waitAudit(t, "identifier_unblocked")

	if _, err := env.engine.Login(context.Background(), "jane@example.com", testPassword); err != nil {
		t.Fatalf("expected login to succeed after unblock, got %v", err)
	}
}

func TestRateLimitStatusTracksFailures(t *testing.T) {
	env := newTestEngine(t)
	env.seedUser(t, "jane@example.com", "janedoe")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(context.Background(), "jane@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}

	status, err := env.engine.RateLimitStatus(context.Background(), "jane@example.com", "login", ratelimit.ScopeUser)
	if err != nil {
		t.Fatalf("RateLimitStatus failed: %v", err)
	}
	if status.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", status.Attempts)
	}
	if status.MaxAttempts != 3 {
		t.Fatalf("expected max 3, got %d", status.MaxAttempts)
	}
	if status.Blocked {
		t.Fatal("should not be blocked yet")
	}

	// Third failure saturates the window and installs the block.
	if _, err := env.engine.Login(context.Background(), "jane@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	status, err = env.engine.RateLimitStatus(context.Background(), "jane@example.com", "login", ratelimit.ScopeUser)
	if err != nil {
		t.Fatalf("RateLimitStatus failed: %v", err)
	}
	if !status.Blocked {
		t.Fatal("expected blocked after saturating the window")
	}
	if !status.BlockExpiresAt.After(env.clock.Now()) {
		t.Fatalf("block expiry %v should be in the future", status.BlockExpiresAt)
	}
}

func TestRateLimitStatusIsReadOnly(t *testing.T) {
	env := newTestEngine(t)
	env.seedUser(t, "jane@example.com", "janedoe")

	if _, err := env.engine.Login(context.Background(), "jane@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	for i := 0; i < 5; i++ {
		status, err := env.engine.RateLimitStatus(context.Background(), "jane@example.com", "login", ratelimit.ScopeUser)
		if err != nil {
			t.Fatalf("RateLimitStatus failed: %v", err)
		}
		if status.Attempts != 1 {
			t.Fatalf("read %d mutated the window: %d attempts", i, status.Attempts)
		}
	}
}
