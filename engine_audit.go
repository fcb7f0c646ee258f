package authkernel

import (
	"context"
	"errors"
	"fmt"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventUserCreated          = "user_created"
	auditEventUserCreationFailure  = "user_creation_failure"
	auditEventRoleAssigned         = "role_assigned"
	auditEventPermissionsAssigned  = "permissions_assigned"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventIdentifierBlocked    = "identifier_blocked"
	auditEventIdentifierUnblocked  = "identifier_unblocked"
)

type auditErrorCode string

const (
	auditErrUnauthorized       auditErrorCode = "unauthorized"
	auditErrInvalidCredentials auditErrorCode = "invalid_credentials"
	auditErrRateLimited        auditErrorCode = "rate_limited"
	auditErrRefreshReuse       auditErrorCode = "refresh_reuse"
	auditErrInvalidToken       auditErrorCode = "invalid_token"
	auditErrTokenExpired       auditErrorCode = "token_expired"
	auditErrSessionNotFound    auditErrorCode = "session_not_found"
	auditErrUserNotFound       auditErrorCode = "user_not_found"
	auditErrDuplicate          auditErrorCode = "duplicate"
	auditErrWeakPassword       auditErrorCode = "password_policy"
	auditErrUsernameInvalid    auditErrorCode = "username_invalid"
	auditErrRoleNotFound       auditErrorCode = "role_not_found"
	auditErrUnavailable        auditErrorCode = "backend_unavailable"
	auditErrInternal           auditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := errorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, endpoint string, metadataBuilder func() map[string]string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		base := map[string]string{
			"endpoint": endpoint,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

// errInvalidToken marks a structurally rejected token (bad signature,
// malformed, wrong type) as opposed to a merely expired one. It wraps
// ErrUnauthorized so callers branch on the public sentinel.
var errInvalidToken = fmt.Errorf("%w: token rejected", ErrUnauthorized)

func errorCode(err error) auditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, errInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAlreadyExists):
		return auditErrDuplicate
	case errors.Is(err, ErrWeakPassword):
		return auditErrWeakPassword
	case errors.Is(err, ErrUsernameInvalid):
		return auditErrUsernameInvalid
	case errors.Is(err, ErrRoleNotFound):
		return auditErrRoleNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
