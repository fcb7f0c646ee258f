package rbac

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var roleNamePattern = regexp.MustCompile(`^[A-Z_]+$`)

// Permission is a fine-grained capability identified by a unique name and a
// (resource, action) pair. Both resource and action are lowercase.
type Permission struct {
	ID          string
	Name        string
	Resource    string
	Action      string
	Description string
	CreatedAt   time.Time
}

// NewPermission validates and constructs a Permission. Resource and action
// are lowercased; construction fails fast on empty or malformed input.
func NewPermission(name, resource, action, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	resource = strings.ToLower(strings.TrimSpace(resource))
	action = strings.ToLower(strings.TrimSpace(action))

	if name == "" {
		return Permission{}, errors.New("permission name is required")
	}
	if resource == "" || action == "" {
		return Permission{}, errors.New("permission resource and action are required")
	}
	if strings.ContainsAny(resource, ": ") || strings.ContainsAny(action, ": ") {
		return Permission{}, fmt.Errorf("invalid permission %s:%s", resource, action)
	}

	return Permission{
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: description,
	}, nil
}

// FullName is the canonical "resource:action" form of the permission.
func (p Permission) FullName() string {
	return p.Resource + ":" + p.Action
}

// Role groups permissions under an uppercase-normalized name.
type Role struct {
	ID          string
	Name        string
	Description string
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRole uppercases name and validates it against [A-Z_]+, failing fast on
// violation.
func NewRole(name, description string, permissions ...Permission) (Role, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !roleNamePattern.MatchString(name) {
		return Role{}, fmt.Errorf("invalid role name %q", name)
	}
	return Role{
		Name:        name,
		Description: description,
		Permissions: permissions,
	}, nil
}

// NormalizeRoleName uppercases name and reports whether the result is a
// well-formed role name.
func NormalizeRoleName(name string) (string, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	return name, roleNamePattern.MatchString(name)
}

// Grants reports whether the role itself carries the named permission.
func (r Role) Grants(name string) bool {
	for _, p := range r.Permissions {
		if p.Name == name {
			return true
		}
	}
	return false
}
