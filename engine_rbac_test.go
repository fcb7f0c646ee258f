package authkernel

import (
	"context"
	"errors"
	"testing"
)

func TestHasPermission(t *testing.T) {
	env := newTestEngine(t)
	user := env.seedUser(t, "jane@example.com", "janedoe")
	env.roles.grant(user.ID,
		mustPermission(t, "users.read", "users", "read"),
		mustPermission(t, "reports.export", "reports", "export"),
	)

	ok, err := env.engine.HasPermission(context.Background(), user.ID, "users.read")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if !ok {
		t.Fatal("expected permission granted")
	}

	ok, err = env.engine.HasPermission(context.Background(), user.ID, "users.delete")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if ok {
		t.Fatal("expected permission denied")
	}

	snapshot := env.engine.MetricsSnapshot()
	if snapshot.Counters[MetricPermissionCheck] != 2 {
		t.Fatalf("expected 2 check metrics, got %d", snapshot.Counters[MetricPermissionCheck])
	}
	if snapshot.Counters[MetricPermissionDenied] != 1 {
		t.Fatalf("expected 1 denied metric, got %d", snapshot.Counters[MetricPermissionDenied])
	}
}

func TestHasResourceActionNormalizesCase(t *testing.T) {
	env := newTestEngine(t)
	user := env.seedUser(t, "jane@example.com", "janedoe")
	env.roles.grant(user.ID, mustPermission(t, "users.read", "users", "read"))

	ok, err := env.engine.HasResourceAction(context.Background(), user.ID, "USERS", "Read")
	if err != nil {
		t.Fatalf("HasResourceAction failed: %v", err)
	}
	if !ok {
		t.Fatal("expected match regardless of case")
	}
}

func TestPermissionCacheInvalidation(t *testing.T) {
	env := newTestEngine(t)
	user := env.seedUser(t, "jane@example.com", "janedoe")

	// First check loads from the store, second hits the cache.
	if _, err := env.engine.HasPermission(context.Background(), user.ID, "users.read"); err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if _, err := env.engine.HasPermission(context.Background(), user.ID, "users.read"); err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if env.roles.loads() != 1 {
		t.Fatalf("expected one store load, got %d", env.roles.loads())
	}

	// A grant becomes visible only after invalidation.
	env.roles.grant(user.ID, mustPermission(t, "users.read", "users", "read"))
	ok, _ := env.engine.HasPermission(context.Background(), user.ID, "users.read")
	if ok {
		t.Fatal("stale cache should not see the new grant yet")
	}

	env.engine.InvalidatePermissions(user.ID)
	ok, err := env.engine.HasPermission(context.Background(), user.ID, "users.read")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if !ok {
		t.Fatal("expected grant visible after invalidation")
	}
}

func TestPermissionsOfDeduplicates(t *testing.T) {
	env := newTestEngine(t)
	user := env.seedUser(t, "jane@example.com", "janedoe")
	perm := mustPermission(t, "users.read", "users", "read")
	env.roles.grant(user.ID, perm, perm)

	perms, err := env.engine.PermissionsOf(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("PermissionsOf failed: %v", err)
	}
	if len(perms) != 1 {
		t.Fatalf("expected deduplicated set, got %v", perms)
	}
}

func TestAssignRolesInvalidatesCache(t *testing.T) {
	env := newTestEngine(t)
	user := env.seedUser(t, "jane@example.com", "janedoe")

	// Prime the cache with an empty permission set.
	if ok, _ := env.engine.HasPermission(context.Background(), user.ID, "users.read"); ok {
		t.Fatal("fresh user should hold nothing")
	}

	if err := env.engine.SetRolePermissions(context.Background(), "ADMIN", "users.read"); err != nil {
		t.Fatalf("SetRolePermissions failed: %v", err)
	}
	if err := env.engine.AssignRoles(context.Background(), user.ID, "admin"); err != nil {
		t.Fatalf("AssignRoles failed: %v", err)
	}
	env.waitAudit(t, "role_assigned")

	ok, err := env.engine.HasPermission(context.Background(), user.ID, "users.read")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if !ok {
		t.Fatal("assignment should be visible without manual invalidation")
	}
}

func TestAssignRolesUnknownRole(t *testing.T) {
	env := newTestEngine(t)
	user := env.seedUser(t, "jane@example.com", "janedoe")

	if err := env.engine.AssignRoles(context.Background(), user.ID, "GHOST"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	if err := env.engine.AssignRoles(context.Background(), user.ID, "not a role!"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound for malformed name, got %v", err)
	}
}

func TestRoleUserCounts(t *testing.T) {
	env := newTestEngine(t)

	counts, err := env.engine.RoleUserCounts(context.Background())
	if err != nil {
		t.Fatalf("RoleUserCounts failed: %v", err)
	}
	if _, ok := counts["USER"]; !ok {
		t.Fatalf("expected USER role in counts: %v", counts)
	}
}
