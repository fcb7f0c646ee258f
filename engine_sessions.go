package authkernel

import (
	"context"
	"strconv"
	"time"

	"github.com/authkernel/authkernel/internal"
	"github.com/authkernel/authkernel/session"
	"github.com/authkernel/authkernel/token"
)

// ValidateAccess verifies an access token and its backing session.
// Validity requires a good signature, an unexpired token of the right
// type, and an active unexpired session; the session's lastUsedAt is
// advanced as a side effect.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.tokens == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	validation := e.tokens.Validate(accessToken, token.TypeAccess)
	if !validation.Valid {
		e.metricInc(MetricValidateFailure)
		if validation.Reason == token.ReasonExpired {
			return nil, ErrTokenExpired
		}
		return nil, ErrUnauthorized
	}

	sess, err := e.sessions.GetByAccessHash(ctx, session.HashToken(accessToken))
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, ErrUnauthorized
	}

	now := e.now()
	if !sess.IsValid(now) {
		e.metricInc(MetricValidateFailure)
		return nil, ErrUnauthorized
	}

	if err := e.sessions.Touch(ctx, sess.ID, now); err != nil {
		e.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("session touch failed")
	}

	e.metricInc(MetricValidateSuccess)
	return &AuthResult{
		UserID:      sess.UserID,
		Email:       validation.Claims.Email,
		SessionID:   sess.ID,
		Permissions: validation.Claims.Permissions,
	}, nil
}

// Logout invalidates the session behind an access token. Logging out an
// already-dead session is a no-op, not an error.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.tokens == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	validation := e.tokens.Validate(accessToken, token.TypeAccess)
	if !validation.Valid {
		return ErrUnauthorized
	}

	sess, err := e.sessions.GetByAccessHash(ctx, session.HashToken(accessToken))
	if err != nil {
		return ErrSessionNotFound
	}

	return e.InvalidateSession(ctx, sess.ID)
}

// InvalidateSession terminates one session by id. Idempotent.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	// A string that could never have been minted as a session id gets
	// rejected before touching the store.
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return ErrSessionNotFound
	}

	changed, err := e.sessions.Invalidate(ctx, sessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", sessionID, ErrStoreUnavailable, nil)
		return err
	}
	if changed {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

// InvalidateAllSessions terminates every session of the user except
// excludeSessionID (pass "" to keep none). The sweep is atomic with
// respect to concurrent session creation.
func (e *Engine) InvalidateAllSessions(ctx context.Context, userID, excludeSessionID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	count, err := e.sessions.InvalidateAllForUser(ctx, userID, excludeSessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", ErrStoreUnavailable, nil)
		return 0, err
	}
	if count > 0 {
		e.metricInc(MetricLogoutAll)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, excludeSessionID, nil, func() map[string]string {
		return map[string]string{"invalidated": strconv.Itoa(count)}
	})
	return count, nil
}

// Sessions lists every stored session of the user, newest first not
// guaranteed; includes inactive and expired rows still present in the
// store.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	return e.sessions.ListByUser(ctx, userID)
}

// ActiveSessions lists the user's sessions valid right now.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	return e.sessions.ListActiveByUser(ctx, userID, e.now())
}

// ActiveSessionCount reports how many sessions of the user are valid
// right now.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.CountActive(ctx, userID, e.now())
}

// PurgeExpiredSessions reclaims storage held by the user's expired
// session rows. Correctness never depends on this running.
func (e *Engine) PurgeExpiredSessions(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.PurgeExpired(ctx, userID, e.now())
}
