package ratelimit

import "errors"

var (
	// ErrRedisUnavailable indicates the counter store is unreachable.
	ErrRedisUnavailable = errors.New("rate limit store unavailable")

	// ErrUnknownScope is returned when no policy is configured for a scope.
	ErrUnknownScope = errors.New("unknown rate limit scope")
)
