package authkernel

import (
	"context"
	"errors"

	"github.com/authkernel/authkernel/session"
	"github.com/authkernel/authkernel/token"
)

// Refresh exchanges a refresh token for a brand-new pair. Refresh tokens
// are single-use: the old session is retired and a successor installed
// in one atomic step, so a replayed token can never yield a second pair.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.tokens == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	validation := e.tokens.Validate(refreshToken, token.TypeRefresh)
	if !validation.Valid {
		e.metricInc(MetricRefreshFailure)
		err := errInvalidToken
		if validation.Reason == token.ReasonExpired {
			err = ErrTokenExpired
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, func() map[string]string {
			return map[string]string{"reason": string(validation.Reason)}
		})
		return nil, err
	}

	userID := validation.Claims.Subject

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", ErrUserNotFound, func() map[string]string {
			return map[string]string{"reason": "user_not_found"}
		})
		return nil, ErrUnauthorized
	}
	if !user.Active {
		// Retire whatever session the token belongs to before refusing.
		if sess, lookupErr := e.sessions.GetByRefreshHash(ctx, session.HashToken(refreshToken)); lookupErr == nil {
			if changed, _ := e.sessions.Invalidate(ctx, sess.ID); changed {
				e.metricInc(MetricSessionInvalidated)
			}
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "account_inactive"}
		})
		return nil, ErrInvalidCredentials
	}

	perms, err := e.evaluator.Names(ctx, userID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	result, next, err := e.establishSession(ctx, user, perms)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	oldID, err := e.sessions.Rotate(ctx, session.HashToken(refreshToken), next, e.config.Token.RefreshTTL)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReused):
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, userID, "", ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, session.ErrRefreshSessionExpired):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", ErrTokenExpired, func() map[string]string {
				return map[string]string{"reason": "session_expired"}
			})
			return nil, ErrTokenExpired
		case errors.Is(err, session.ErrSessionNotFound):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", ErrSessionNotFound, func() map[string]string {
				return map[string]string{"reason": "session_not_found"}
			})
			return nil, ErrSessionNotFound
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", err, func() map[string]string {
				return map[string]string{"reason": "rotate_failed"}
			})
			return nil, err
		}
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricSessionInvalidated)
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, next.ID, nil, func() map[string]string {
		return map[string]string{"previous_session_id": oldID}
	})

	return result, nil
}
