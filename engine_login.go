package authkernel

import (
	"context"
	"strings"

	"github.com/authkernel/authkernel/internal"
	"github.com/authkernel/authkernel/ratelimit"
	"github.com/authkernel/authkernel/session"
)

const loginEndpoint = "login"

// Login authenticates the identifier/password pair and establishes a
// session. The identifier may be an email address or a username; every
// failure mode returns ErrInvalidCredentials so callers cannot probe for
// account existence.
func (e *Engine) Login(ctx context.Context, identifier, plaintext string) (*LoginResult, error) {
	if e == nil || e.hasher == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	ip := clientIPFromContext(ctx)

	if err := e.loginGate(ctx, identifier, ip); err != nil {
		return nil, err
	}

	if identifier == "" || plaintext == "" {
		return nil, e.failLogin(ctx, identifier, ip, "", "empty_input")
	}

	user, err := e.lookupByIdentifier(ctx, identifier)
	if err != nil {
		return nil, e.failLogin(ctx, identifier, ip, "", "user_not_found")
	}

	if !e.hasher.Verify(plaintext, user.PasswordHash) {
		return nil, e.failLogin(ctx, identifier, ip, user.ID, "password_mismatch")
	}
	if !user.Active {
		// Same uniform error as a wrong password.
		return nil, e.failLogin(ctx, identifier, ip, user.ID, "account_inactive")
	}

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsRehash(user.PasswordHash) {
		// Best effort; a failed upgrade must not block the login.
		if upgraded, hashErr := e.hasher.Hash(plaintext); hashErr == nil {
			if updErr := e.users.UpdatePasswordHash(ctx, user.ID, upgraded); updErr != nil {
				e.logger.Warn().Err(updErr).Str("user_id", user.ID).Msg("password hash upgrade failed")
			}
		}
	}
	plaintext = ""

	if err := e.enforceSessionLimits(ctx, user.ID); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "session_limit"}
		})
		return nil, err
	}

	perms, err := e.evaluator.Names(ctx, user.ID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "permission_load_failed"}
		})
		return nil, err
	}

	result, sess, err := e.establishSession(ctx, user, perms)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "session_creation_failed"}
		})
		return nil, err
	}

	if err := e.sessions.Save(ctx, sess, e.config.Token.RefreshTTL); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, sess.ID, ErrStoreUnavailable, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "session_save_failed"}
		})
		return nil, err
	}

	e.recordLoginSuccess(ctx, identifier, ip)

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{"identifier": identifier}
	})

	return result, nil
}

func (e *Engine) lookupByIdentifier(ctx context.Context, identifier string) (*UserRecord, error) {
	if strings.Contains(identifier, "@") {
		return e.users.GetByEmail(ctx, identifier)
	}
	return e.users.GetByUsername(ctx, identifier)
}

// loginGate checks every configured rate limit scope before any
// credential work happens.
func (e *Engine) loginGate(ctx context.Context, identifier, ip string) error {
	if e.limiter == nil {
		return nil
	}

	checks := []struct {
		scope ratelimit.Scope
		key   string
	}{
		{ratelimit.ScopeIdentifier, ip},
		{ratelimit.ScopeUser, strings.ToLower(identifier)},
		{ratelimit.ScopeGlobal, "all"},
	}
	for _, c := range checks {
		if c.key == "" {
			continue
		}
		res, err := e.limiter.Check(ctx, c.key, loginEndpoint, c.scope)
		if err != nil {
			e.logger.Warn().Err(err).Msg("rate limit check failed")
			continue
		}
		if !res.Allowed {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
				return map[string]string{"identifier": identifier, "scope": string(c.scope)}
			})
			e.emitRateLimit(ctx, loginEndpoint, func() map[string]string {
				return map[string]string{"identifier": identifier, "scope": string(c.scope)}
			})
			return ErrRateLimited
		}
	}
	return nil
}

func (e *Engine) failLogin(ctx context.Context, identifier, ip, userID, reason string) error {
	if e.limiter != nil {
		if ip != "" {
			if _, err := e.limiter.RecordFailure(ctx, ip, loginEndpoint, ratelimit.ScopeIdentifier); err != nil {
				e.logger.Warn().Err(err).Msg("rate limit record failed")
			}
		}
		if identifier != "" {
			if _, err := e.limiter.RecordFailure(ctx, strings.ToLower(identifier), loginEndpoint, ratelimit.ScopeUser); err != nil {
				e.logger.Warn().Err(err).Msg("rate limit record failed")
			}
		}
		if _, err := e.limiter.RecordFailure(ctx, "all", loginEndpoint, ratelimit.ScopeGlobal); err != nil {
			e.logger.Warn().Err(err).Msg("rate limit record failed")
		}
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"identifier": identifier, "reason": reason}
	})
	return ErrInvalidCredentials
}

func (e *Engine) recordLoginSuccess(ctx context.Context, identifier, ip string) {
	if e.limiter == nil {
		return
	}
	if ip != "" {
		if err := e.limiter.RecordSuccess(ctx, ip, loginEndpoint, ratelimit.ScopeIdentifier); err != nil {
			e.logger.Warn().Err(err).Msg("rate limit reset failed")
		}
	}
	if identifier != "" {
		if err := e.limiter.RecordSuccess(ctx, strings.ToLower(identifier), loginEndpoint, ratelimit.ScopeUser); err != nil {
			e.logger.Warn().Err(err).Msg("rate limit reset failed")
		}
	}
}

func (e *Engine) enforceSessionLimits(ctx context.Context, userID string) error {
	if e.config.Session.EnforceSingleSession {
		count, err := e.sessions.InvalidateAllForUser(ctx, userID, "")
		if err != nil {
			return err
		}
		if count > 0 {
			e.metricInc(MetricSessionInvalidated)
		}
		return nil
	}

	if limit := e.config.Session.MaxSessionsPerUser; limit > 0 {
		active, err := e.sessions.CountActive(ctx, userID, e.now())
		if err != nil {
			return err
		}
		if active >= limit {
			return ErrSessionLimitExceeded
		}
	}
	return nil
}

// establishSession issues a token pair and builds the session that
// records their hashes. The caller persists it.
func (e *Engine) establishSession(ctx context.Context, user *UserRecord, perms []string) (*LoginResult, *session.Session, error) {
	pair, err := e.tokens.IssuePair(user.ID, user.Email, perms)
	if err != nil {
		return nil, nil, err
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, nil, err
	}

	now := e.now()
	ip := clientIPFromContext(ctx)

	sess := &session.Session{
		ID:          sid.String(),
		UserID:      user.ID,
		AccessHash:  session.HashToken(pair.AccessToken),
		RefreshHash: session.HashToken(pair.RefreshToken),
		IP:          ip,
		UserAgent:   userAgentFromContext(ctx),
		Country:     e.clientCountry(ctx, ip),
		Active:      true,
		CreatedAt:   now,
		ExpiresAt:   pair.RefreshExpiresAt,
		LastUsedAt:  now,
	}

	result := &LoginResult{
		UserID:           user.ID,
		Username:         user.Username,
		SessionID:        sess.ID,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
	return result, sess, nil
}
