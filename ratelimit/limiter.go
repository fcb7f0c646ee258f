package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Scope selects which identifier space a limit applies to.
type Scope string

const (
	// ScopeIdentifier limits by client identifier, typically an IP address.
	ScopeIdentifier Scope = "identifier"
	// ScopeUser limits by user id.
	ScopeUser Scope = "user"
	// ScopeGlobal limits an endpoint across all callers.
	ScopeGlobal Scope = "global"
)

// Policy holds the tuning parameters of one scope.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	Block       time.Duration
}

// Config carries one policy per scope. A scope with MaxAttempts <= 0 is
// disabled: checks pass and failures are not recorded.
type Config struct {
	Identifier Policy
	User       Policy
	Global     Policy
}

// Result is the outcome of a single rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Status is a point-in-time read of a window and its block state.
// Producing it never mutates counters.
type Status struct {
	Identifier     string
	Endpoint       string
	Scope          Scope
	Attempts       int
	MaxAttempts    int
	WindowStart    time.Time
	WindowEnd      time.Time
	Blocked        bool
	BlockExpiresAt time.Time
}

// recordLua purges entries outside the window, records the new failure,
// counts, and installs the block when the threshold is reached. One
// script, so a cancelled caller never leaves the window half-updated and
// two racing callers both see each other's entry.
//
// KEYS[1] window zset, KEYS[2] block key.
// ARGV: now-millis, window-millis, member, max-attempts, block-millis.
// Returns the post-record count.
var recordLua = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, tonumber(ARGV[1]) - tonumber(ARGV[2]))
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
if count >= tonumber(ARGV[4]) then
  redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[5])
end
return count
`)

// checkLua purges then counts, returning the count and the oldest
// surviving score so the caller can report when the window frees up.
var checkLua = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, tonumber(ARGV[1]) - tonumber(ARGV[2]))
local count = redis.call("ZCARD", KEYS[1])
if count == 0 then
  return {0, 0}
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return {count, oldest[2]}
`)

// Limiter enforces sliding-window limits per identifier, per user, and
// globally, each scope with its own policy.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	prefix string
	now    func() time.Time
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ak"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock returns a copy of the limiter using now as its clock.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	clone := *l
	clone.now = now
	return &clone
}

func (l *Limiter) policy(scope Scope) (Policy, error) {
	switch scope {
	case ScopeIdentifier:
		return l.config.Identifier, nil
	case ScopeUser:
		return l.config.User, nil
	case ScopeGlobal:
		return l.config.Global, nil
	default:
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
}

func (l *Limiter) windowKey(scope Scope, endpoint, identifier string) string {
	return l.prefix + ":rl:" + string(scope) + ":" + endpoint + ":" + identifier
}

func (l *Limiter) blockKey(scope Scope, endpoint, identifier string) string {
	return l.prefix + ":rb:" + string(scope) + ":" + endpoint + ":" + identifier
}

// Check reports whether an attempt is currently allowed. An active block
// short-circuits with the block expiry as ResetAt; otherwise the window
// is purged and counted.
func (l *Limiter) Check(ctx context.Context, identifier, endpoint string, scope Scope) (Result, error) {
	policy, err := l.policy(scope)
	if err != nil {
		return Result{}, err
	}
	if policy.MaxAttempts <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	now := l.now()

	blockTTL, err := l.redis.PTTL(ctx, l.blockKey(scope, endpoint, identifier)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if blockTTL > 0 {
		return Result{Allowed: false, Remaining: 0, ResetAt: now.Add(blockTTL)}, nil
	}

	res, err := checkLua.Run(ctx, l.redis,
		[]string{l.windowKey(scope, endpoint, identifier)},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(policy.Window.Milliseconds(), 10),
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, oldest := parseCheckReply(res)
	remaining := policy.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:   count < policy.MaxAttempts,
		Remaining: remaining,
	}
	if oldest > 0 {
		result.ResetAt = time.UnixMilli(oldest).Add(policy.Window)
	}
	return result, nil
}

// RecordFailure adds a failed attempt to the window and blocks the
// identifier once the threshold is reached. Returns the post-record
// attempt count.
func (l *Limiter) RecordFailure(ctx context.Context, identifier, endpoint string, scope Scope) (int, error) {
	policy, err := l.policy(scope)
	if err != nil {
		return 0, err
	}
	if policy.MaxAttempts <= 0 {
		return 0, nil
	}

	now := l.now()
	member := strconv.FormatInt(now.UnixMilli(), 10) + ":" + uuid.NewString()

	count, err := recordLua.Run(ctx, l.redis,
		[]string{
			l.windowKey(scope, endpoint, identifier),
			l.blockKey(scope, endpoint, identifier),
		},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(policy.Window.Milliseconds(), 10),
		member,
		strconv.Itoa(policy.MaxAttempts),
		strconv.FormatInt(policy.Block.Milliseconds(), 10),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// RecordSuccess clears the window and any block for the identifier. A
// legitimate attempt resets the abuse counter.
func (l *Limiter) RecordSuccess(ctx context.Context, identifier, endpoint string, scope Scope) error {
	if _, err := l.policy(scope); err != nil {
		return err
	}
	err := l.redis.Del(ctx,
		l.windowKey(scope, endpoint, identifier),
		l.blockKey(scope, endpoint, identifier),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Block places the identifier into the blocked state for the given
// duration, independent of the window count.
func (l *Limiter) Block(ctx context.Context, identifier, endpoint string, scope Scope, duration time.Duration) error {
	if _, err := l.policy(scope); err != nil {
		return err
	}
	now := l.now()
	err := l.redis.Set(ctx, l.blockKey(scope, endpoint, identifier),
		strconv.FormatInt(now.UnixMilli(), 10), duration).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Unblock removes an active block. The window is left intact.
func (l *Limiter) Unblock(ctx context.Context, identifier, endpoint string, scope Scope) error {
	if _, err := l.policy(scope); err != nil {
		return err
	}
	if err := l.redis.Del(ctx, l.blockKey(scope, endpoint, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetStatus reads the current window count and block state without
// mutating either. Stale entries are excluded by score range rather
// than purged.
func (l *Limiter) GetStatus(ctx context.Context, identifier, endpoint string, scope Scope) (Status, error) {
	policy, err := l.policy(scope)
	if err != nil {
		return Status{}, err
	}

	now := l.now()
	status := Status{
		Identifier:  identifier,
		Endpoint:    endpoint,
		Scope:       scope,
		MaxAttempts: policy.MaxAttempts,
		WindowStart: now.Add(-policy.Window),
		WindowEnd:   now,
	}

	windowFloor := strconv.FormatInt(now.Add(-policy.Window).UnixMilli(), 10)
	count, err := l.redis.ZCount(ctx, l.windowKey(scope, endpoint, identifier), windowFloor, "+inf").Result()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	status.Attempts = int(count)

	blockTTL, err := l.redis.PTTL(ctx, l.blockKey(scope, endpoint, identifier)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if blockTTL > 0 {
		status.Blocked = true
		status.BlockExpiresAt = now.Add(blockTTL)
	}

	return status, nil
}

func parseCheckReply(res []interface{}) (count int, oldest int64) {
	if len(res) != 2 {
		return 0, 0
	}
	if n, ok := res[0].(int64); ok {
		count = int(n)
	}
	switch v := res[1].(type) {
	case int64:
		oldest = v
	case string:
		oldest, _ = strconv.ParseInt(v, 10, 64)
	}
	return count, oldest
}
