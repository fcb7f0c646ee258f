package authkernel

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/authkernel/authkernel/geo"
	"github.com/authkernel/authkernel/password"
	"github.com/authkernel/authkernel/ratelimit"
	"github.com/authkernel/authkernel/rbac"
	"github.com/authkernel/authkernel/session"
	"github.com/authkernel/authkernel/token"
	"github.com/authkernel/authkernel/username"
)

// Engine is the identity and access control core. It is configured once
// through the [Builder] and safe for concurrent use afterwards.
type Engine struct {
	config    Config
	logger    zerolog.Logger
	hasher    *password.Hasher
	policy    *password.Policy
	tokens    *token.Manager
	usernames *username.Resolver
	evaluator *rbac.Evaluator
	sessions  *session.Store
	limiter   *ratelimit.Limiter
	locator   geo.Locator
	users     UserStore
	roles     RoleStore
	audit     *auditDispatcher
	metrics   *Metrics
	now       func() time.Time
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) clientCountry(ctx context.Context, ip string) string {
	if e.locator == nil || ip == "" {
		return geo.Unknown.Country
	}
	return e.locator.Lookup(ctx, ip).Country
}
