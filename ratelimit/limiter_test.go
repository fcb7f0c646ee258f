package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Unix(1700000000, 0)
	limiter := New(client, cfg, "ak").WithClock(func() time.Time { return now })
	return limiter, mr, &now
}

func identifierPolicy(max int) Config {
	return Config{
		Identifier: Policy{MaxAttempts: max, Window: 15 * time.Minute, Block: 30 * time.Minute},
	}
}

func TestCheckAllowsFreshIdentifier(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, identifierPolicy(5))
	ctx := context.Background()

	res, err := limiter.Check(ctx, "203.0.113.7", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed || res.Remaining != 5 {
		t.Fatalf("fresh check = %+v", res)
	}
}

func TestThresholdBlocksAndNeverUndercounts(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, identifierPolicy(5))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := limiter.RecordFailure(ctx, "ip", "login", ScopeIdentifier); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		res, err := limiter.Check(ctx, "ip", "login", ScopeIdentifier)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("blocked after only %d failures", i+1)
		}
		if res.Remaining != 5-(i+1) {
			t.Fatalf("remaining after %d failures = %d", i+1, res.Remaining)
		}
	}

	// The fifth failure reaches the threshold and installs the block.
	count, err := limiter.RecordFailure(ctx, "ip", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("record fifth: %v", err)
	}
	if count != 5 {
		t.Fatalf("count after fifth failure = %d", count)
	}

	res, err := limiter.Check(ctx, "ip", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("check after block: %v", err)
	}
	if res.Allowed {
		t.Fatal("check allowed while blocked")
	}
	if res.ResetAt.IsZero() {
		t.Fatal("blocked check carries no reset time")
	}
}

func TestWindowSlides(t *testing.T) {
	limiter, _, now := newTestLimiter(t, identifierPolicy(3))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := limiter.RecordFailure(ctx, "ip", "login", ScopeIdentifier); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	// Move past the window: old entries are purged on the next check.
	*now = now.Add(16 * time.Minute)

	res, err := limiter.Check(ctx, "ip", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed || res.Remaining != 3 {
		t.Fatalf("window did not slide: %+v", res)
	}
}

func TestRecordSuccessClearsWindowAndBlock(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, identifierPolicy(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := limiter.RecordFailure(ctx, "ip", "login", ScopeIdentifier); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	res, _ := limiter.Check(ctx, "ip", "login", ScopeIdentifier)
	if res.Allowed {
		t.Fatal("expected block before success")
	}

	if err := limiter.RecordSuccess(ctx, "ip", "login", ScopeIdentifier); err != nil {
		t.Fatalf("record success: %v", err)
	}

	res, err := limiter.Check(ctx, "ip", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed || res.Remaining != 2 {
		t.Fatalf("success did not reset: %+v", res)
	}
}

func TestManualBlockAndUnblock(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, identifierPolicy(5))
	ctx := context.Background()

	if err := limiter.Block(ctx, "ip", "login", ScopeIdentifier, time.Hour); err != nil {
		t.Fatalf("block: %v", err)
	}
	res, err := limiter.Check(ctx, "ip", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed {
		t.Fatal("manual block not enforced")
	}

	if err := limiter.Unblock(ctx, "ip", "login", ScopeIdentifier); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	res, err = limiter.Check(ctx, "ip", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("check after unblock: %v", err)
	}
	if !res.Allowed {
		t.Fatal("unblock did not lift the block")
	}
}

func TestStatusIsPureRead(t *testing.T) {
	limiter, _, now := newTestLimiter(t, identifierPolicy(5))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.RecordFailure(ctx, "ip", "login", ScopeIdentifier); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	status, err := limiter.GetStatus(ctx, "ip", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Attempts != 3 || status.Blocked || status.MaxAttempts != 5 {
		t.Fatalf("status = %+v", status)
	}

	// Stale entries drop out of the reported count without being purged.
	*now = now.Add(16 * time.Minute)
	status, err = limiter.GetStatus(ctx, "ip", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Attempts != 0 {
		t.Fatalf("stale attempts still counted: %+v", status)
	}

	status, err = limiter.GetStatus(ctx, "ip", "login", ScopeIdentifier)
	if err != nil || status.Attempts != 0 {
		t.Fatalf("repeated status changed state: %+v err=%v", status, err)
	}
}

func TestStatusReportsBlock(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, identifierPolicy(5))
	ctx := context.Background()

	if err := limiter.Block(ctx, "ip", "login", ScopeIdentifier, time.Hour); err != nil {
		t.Fatalf("block: %v", err)
	}
	status, err := limiter.GetStatus(ctx, "ip", "login", ScopeIdentifier)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Blocked || status.BlockExpiresAt.IsZero() {
		t.Fatalf("block not reported: %+v", status)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	cfg := Config{
		Identifier: Policy{MaxAttempts: 2, Window: 15 * time.Minute, Block: 30 * time.Minute},
		User:       Policy{MaxAttempts: 10, Window: 15 * time.Minute, Block: 30 * time.Minute},
	}
	limiter, _, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := limiter.RecordFailure(ctx, "alice", "login", ScopeIdentifier); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	res, err := limiter.Check(ctx, "alice", "login", ScopeIdentifier)
	if err != nil || res.Allowed {
		t.Fatalf("identifier scope not blocked: %+v err=%v", res, err)
	}

	// Same identifier string under another scope stays clean.
	res, err = limiter.Check(ctx, "alice", "login", ScopeUser)
	if err != nil || !res.Allowed {
		t.Fatalf("user scope affected by identifier scope: %+v err=%v", res, err)
	}
}

func TestEndpointsAreIndependent(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, identifierPolicy(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := limiter.RecordFailure(ctx, "ip", "login", ScopeIdentifier); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	res, err := limiter.Check(ctx, "ip", "register", ScopeIdentifier)
	if err != nil || !res.Allowed {
		t.Fatalf("register inherited login failures: %+v err=%v", res, err)
	}
}

func TestDisabledScopePassesThrough(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, identifierPolicy(5)) // Global unset
	ctx := context.Background()

	res, err := limiter.Check(ctx, "", "login", ScopeGlobal)
	if err != nil || !res.Allowed {
		t.Fatalf("disabled scope blocked: %+v err=%v", res, err)
	}
	count, err := limiter.RecordFailure(ctx, "", "login", ScopeGlobal)
	if err != nil || count != 0 {
		t.Fatalf("disabled scope recorded: count=%d err=%v", count, err)
	}
}

func TestUnknownScope(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, identifierPolicy(5))
	ctx := context.Background()

	if _, err := limiter.Check(ctx, "ip", "login", Scope("bogus")); !errors.Is(err, ErrUnknownScope) {
		t.Fatalf("want ErrUnknownScope, got %v", err)
	}
}
