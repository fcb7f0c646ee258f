package authkernel

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build wired the required dependencies.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrInvalidCredentials covers every authentication failure: unknown
	// identifier, wrong password, or inactive account. The message is
	// deliberately uniform to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned when an access token fails validation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired is returned when a token is valid except for its
	// expiry; callers may route this to a refresh.
	ErrTokenExpired = errors.New("token expired")

	// ErrRateLimited is returned when a rate limit gate denies the attempt.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists is returned on duplicate user, role, or permission
	// creation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUserNotFound is returned when a user lookup by id misses. Login
	// paths never surface it; they return ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")

	// ErrRoleNotFound is returned when a referenced role does not exist.
	ErrRoleNotFound = errors.New("role not found")

	// ErrSessionNotFound is returned when no session matches the token or id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRefreshReuse is returned when a refresh token is presented after it
	// was already rotated or its session invalidated.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrWeakPassword is returned when a password fails the strength policy.
	ErrWeakPassword = errors.New("password does not meet policy")

	// ErrUsernameInvalid is returned when a requested handle fails validation.
	ErrUsernameInvalid = errors.New("invalid username")

	// ErrSessionLimitExceeded is returned when a login would exceed the
	// configured concurrent session cap.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")

	// ErrStoreUnavailable wraps backend failures of the shared stores.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
