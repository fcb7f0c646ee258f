package authkernel

import (
	"context"
	"time"

	"github.com/authkernel/authkernel/rbac"
)

// UserRecord is the user aggregate as the persistence layer sees it.
// Handle and email uniqueness is enforced by the store, not in memory.
type UserRecord struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Active       bool
	Roles        []rbac.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListOptions controls paginated user listing and search.
type ListOptions struct {
	// Query matches against username, email, and profile names. Empty
	// matches everything.
	Query  string
	Offset int
	Limit  int
}

// UserStore is the persistence port for user aggregates.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*UserRecord, error)
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	// GetByUsername matches case-insensitively.
	GetByUsername(ctx context.Context, username string) (*UserRecord, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]UserRecord, int, error)
	// SaveWithRoles persists the user and its role associations as one
	// transactional unit: either everything commits or nothing does.
	SaveWithRoles(ctx context.Context, user *UserRecord, roleNames []string) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	SetActive(ctx context.Context, userID string, active bool) error
}

// RoleStore is the persistence port for roles and permissions. Its
// PermissionsForUser method satisfies the permission evaluator's source
// contract.
type RoleStore interface {
	GetRoleByName(ctx context.Context, name string) (*rbac.Role, error)
	// GetRoleWithPermissions loads a role by id including its permission set.
	GetRoleWithPermissions(ctx context.Context, id string) (*rbac.Role, error)
	RoleExists(ctx context.Context, name string) (bool, error)
	// PermissionsForUser returns the union of permissions across all of the
	// user's roles.
	PermissionsForUser(ctx context.Context, userID string) ([]rbac.Permission, error)
	// RoleUserCounts reports how many users hold each role.
	RoleUserCounts(ctx context.Context) (map[string]int, error)
	// AssignRoles adds the named roles to the user, atomically and
	// idempotently. Unknown roles fail the whole call.
	AssignRoles(ctx context.Context, userID string, roleNames []string) error
	// SetRolePermissions replaces the role's permission set. Unknown
	// permissions fail the whole call.
	SetRolePermissions(ctx context.Context, roleName string, permissionNames []string) error
}

// RegisterInput carries everything needed to create a user.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	// PreferredUsername is used verbatim when valid and free; otherwise a
	// handle is derived from the profile names.
	PreferredUsername string
	RoleNames         []string
}

// LoginResult is the outcome of a successful login or refresh.
type LoginResult struct {
	UserID           string
	Username         string
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult describes the authenticated caller behind a validated
// access token.
type AuthResult struct {
	UserID      string
	Email       string
	SessionID   string
	Permissions []string
}
