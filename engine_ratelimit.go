package authkernel

import (
	"context"
	"time"

	"github.com/authkernel/authkernel/ratelimit"
)

// RateLimitStatus reports the current window count and block state for an
// identifier without mutating either. Safe for dashboards and admin tooling.
func (e *Engine) RateLimitStatus(ctx context.Context, identifier, endpoint string, scope ratelimit.Scope) (ratelimit.Status, error) {
	if e == nil || e.limiter == nil {
		return ratelimit.Status{}, ErrEngineNotReady
	}
	return e.limiter.GetStatus(ctx, identifier, endpoint, scope)
}

// BlockIdentifier installs a manual block, overriding whatever the sliding
// window currently says. Used for admin lockouts and abuse response.
func (e *Engine) BlockIdentifier(ctx context.Context, identifier, endpoint string, scope ratelimit.Scope, duration time.Duration) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}

	if err := e.limiter.Block(ctx, identifier, endpoint, scope, duration); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventIdentifierBlocked, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"endpoint":   endpoint,
			"scope":      string(scope),
			"duration":   duration.String(),
		}
	})
	return nil
}

// UnblockIdentifier lifts a block early. The failure window is left in
// place, so a still-saturated identifier re-blocks on its next failure.
func (e *Engine) UnblockIdentifier(ctx context.Context, identifier, endpoint string, scope ratelimit.Scope) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}

	if err := e.limiter.Unblock(ctx, identifier, endpoint, scope); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventIdentifierUnblocked, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"endpoint":   endpoint,
			"scope":      string(scope),
		}
	})
	return nil
}
