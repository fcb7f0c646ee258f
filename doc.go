// Package authkernel provides an identity and access control engine with
// bcrypt credential verification, JWT access tokens, rotating single-use
// refresh tokens, Redis-backed sessions, name-based RBAC, and sliding-window
// rate limiting.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authkernel is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, AuthResult, AuditEvent, etc.). Domain
// mechanics live in the sub-packages — password, token, session, rbac,
// ratelimit, username, geo — which never import authkernel back.
//
// Persistence is a port: callers supply [UserStore] and [RoleStore]
// implementations (the postgres sub-package ships one) and a Redis client.
// The engine owns no connection lifecycle beyond closing its own workers.
//
// # Failure posture
//
//   - Credential failures are uniform: wrong password, unknown identifier,
//     and disabled account all return [ErrInvalidCredentials].
//   - Refresh tokens are single-use; presenting a rotated or invalidated
//     token surfaces [ErrRefreshReuse] or [ErrSessionNotFound].
//   - Geolocation is advisory and fails open; Redis outages surface as
//     [ErrStoreUnavailable] rather than partial results.
package authkernel
