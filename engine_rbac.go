package authkernel

import (
	"context"
	"strings"

	"github.com/authkernel/authkernel/rbac"
)

// HasPermission reports whether the user holds the named permission
// through any of its roles. Unknown users and unknown permissions deny.
func (e *Engine) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	if e == nil || e.evaluator == nil {
		return false, ErrEngineNotReady
	}

	e.metricInc(MetricPermissionCheck)
	ok, err := e.evaluator.HasPermission(ctx, userID, permission)
	if err != nil {
		return false, err
	}
	if !ok {
		e.metricInc(MetricPermissionDenied)
	}
	return ok, nil
}

// HasResourceAction checks a permission by its resource/action pair.
func (e *Engine) HasResourceAction(ctx context.Context, userID, resource, action string) (bool, error) {
	if e == nil || e.evaluator == nil {
		return false, ErrEngineNotReady
	}

	e.metricInc(MetricPermissionCheck)
	ok, err := e.evaluator.HasResourceAction(ctx, userID, resource, action)
	if err != nil {
		return false, err
	}
	if !ok {
		e.metricInc(MetricPermissionDenied)
	}
	return ok, nil
}

// PermissionsOf returns the user's effective permission set: the sorted
// deduplicated union across all roles.
func (e *Engine) PermissionsOf(ctx context.Context, userID string) ([]rbac.Permission, error) {
	if e == nil || e.evaluator == nil {
		return nil, ErrEngineNotReady
	}
	return e.evaluator.PermissionsOf(ctx, userID)
}

// InvalidatePermissions drops cached permission sets so the next check
// reloads from the role store. With no arguments the whole cache clears.
func (e *Engine) InvalidatePermissions(userIDs ...string) {
	if e == nil || e.evaluator == nil {
		return
	}
	if len(userIDs) == 0 {
		e.evaluator.InvalidateAll()
		return
	}
	e.evaluator.Invalidate(userIDs...)
}

// AssignRoles grants the named roles to the user and drops the user's
// cached permission set so the next check sees the new grants.
func (e *Engine) AssignRoles(ctx context.Context, userID string, roleNames ...string) error {
	if e == nil || e.roles == nil || e.evaluator == nil {
		return ErrEngineNotReady
	}

	normalized := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		n, ok := rbacRoleName(name)
		if !ok {
			return ErrRoleNotFound
		}
		normalized = append(normalized, n)
	}

	if err := e.roles.AssignRoles(ctx, userID, normalized); err != nil {
		return err
	}

	e.evaluator.Invalidate(userID)
	e.emitAudit(ctx, auditEventRoleAssigned, true, userID, "", nil, func() map[string]string {
		return map[string]string{"roles": strings.Join(normalized, ",")}
	})
	return nil
}

// SetRolePermissions replaces a role's permission set. Every user's cached
// permissions are dropped since role membership is not tracked in memory.
func (e *Engine) SetRolePermissions(ctx context.Context, roleName string, permissionNames ...string) error {
	if e == nil || e.roles == nil || e.evaluator == nil {
		return ErrEngineNotReady
	}

	normalized, ok := rbacRoleName(roleName)
	if !ok {
		return ErrRoleNotFound
	}

	if err := e.roles.SetRolePermissions(ctx, normalized, permissionNames); err != nil {
		return err
	}

	e.evaluator.InvalidateAll()
	e.emitAudit(ctx, auditEventPermissionsAssigned, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"role":        normalized,
			"permissions": strings.Join(permissionNames, ","),
		}
	})
	return nil
}

// RoleUserCounts reports how many users hold each role.
func (e *Engine) RoleUserCounts(ctx context.Context) (map[string]int, error) {
	if e == nil || e.roles == nil {
		return nil, ErrEngineNotReady
	}
	return e.roles.RoleUserCounts(ctx)
}

func rbacRoleName(name string) (string, bool) {
	return rbac.NormalizeRoleName(name)
}
