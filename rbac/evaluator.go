package rbac

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Source loads the permissions a user holds through role membership. The
// persistence layer implements it.
type Source interface {
	PermissionsForUser(ctx context.Context, userID string) ([]Permission, error)
}

// Evaluator answers permission checks with union semantics and default-deny.
// It is safe for concurrent use; the internal cache is shared across
// goroutines and must be invalidated through [Evaluator.Invalidate] whenever
// an assignment write affects a user.
type Evaluator struct {
	source Source

	mu    sync.RWMutex
	cache map[string][]Permission
}

// NewEvaluator returns an Evaluator over the given source.
func NewEvaluator(source Source) (*Evaluator, error) {
	if source == nil {
		return nil, errors.New("permission source is required")
	}
	return &Evaluator{
		source: source,
		cache:  make(map[string][]Permission),
	}, nil
}

// PermissionsOf returns the user's effective permission set: the deduplicated
// union across all roles, sorted by name for stable snapshots.
func (e *Evaluator) PermissionsOf(ctx context.Context, userID string) ([]Permission, error) {
	e.mu.RLock()
	cached, ok := e.cache[userID]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	loaded, err := e.source.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	set := dedupe(loaded)

	e.mu.Lock()
	e.cache[userID] = set
	e.mu.Unlock()

	return set, nil
}

// HasPermission reports whether the user holds a permission with the exact
// given name. Absence is "not authorized" — there is no implicit bypass.
func (e *Evaluator) HasPermission(ctx context.Context, userID, name string) (bool, error) {
	perms, err := e.PermissionsOf(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// HasResourceAction reports whether the user holds a permission matching the
// exact (resource, action) pair.
func (e *Evaluator) HasResourceAction(ctx context.Context, userID, resource, action string) (bool, error) {
	resource = strings.ToLower(resource)
	action = strings.ToLower(action)

	perms, err := e.PermissionsOf(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Resource == resource && p.Action == action {
			return true, nil
		}
	}
	return false, nil
}

// Names returns the permission names of the user's effective set, the shape
// embedded into access tokens.
func (e *Evaluator) Names(ctx context.Context, userID string) ([]string, error) {
	perms, err := e.PermissionsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names, nil
}

// Invalidate drops the cached permission sets of the given users. Callers
// performing assignment writes must invoke it for every affected user before
// the write is considered complete.
func (e *Evaluator) Invalidate(userIDs ...string) {
	e.mu.Lock()
	for _, id := range userIDs {
		delete(e.cache, id)
	}
	e.mu.Unlock()
}

// InvalidateAll drops every cached permission set, for writes whose blast
// radius is unknown (e.g. editing a role shared by many users).
func (e *Evaluator) InvalidateAll() {
	e.mu.Lock()
	e.cache = make(map[string][]Permission)
	e.mu.Unlock()
}

func dedupe(perms []Permission) []Permission {
	seen := make(map[string]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
