package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	authkernel "github.com/authkernel/authkernel"
	"github.com/authkernel/authkernel/rbac"
)

var _ authkernel.RoleStore = (*Store)(nil)

func (s *Store) GetRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	return s.roleBy(ctx, `where name = $1`, name)
}

func (s *Store) GetRoleWithPermissions(ctx context.Context, id string) (*rbac.Role, error) {
	return s.roleBy(ctx, `where id = $1`, id)
}

func (s *Store) roleBy(ctx context.Context, where string, arg any) (*rbac.Role, error) {
	var (
		role rbac.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at, updated_at from roles `+where,
		arg,
	).Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authkernel.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		role.Description = desc.String
	}

	perms, err := s.permissionsOfRole(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

func (s *Store) RoleExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from roles where name = $1)`,
		name,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) PermissionsForUser(ctx context.Context, userID string) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.id, p.name, p.resource, p.action, coalesce(p.description, ''), p.created_at
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		order by p.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPermissions(rows)
}

func (s *Store) RoleUserCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name, count(ur.user_id)
		from roles r
		left join user_roles ur on ur.role_id = r.id
		group by r.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		counts[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// AssignRoles adds the named roles to the user. Assignments already in
// place are left alone; an unknown role aborts the whole call.
func (s *Store) AssignRoles(ctx context.Context, userID string, roleNames []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range roleNames {
		var roleID string
		err := tx.QueryRowContext(ctx, `select id from roles where name = $1`, name).Scan(&roleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return authkernel.ErrRoleNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id)
			values ($1, $2)
			on conflict do nothing
		`, userID, roleID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return authkernel.ErrUserNotFound
			}
			return err
		}
	}

	return tx.Commit()
}

// SetRolePermissions replaces the role's permission set. Permissions are
// matched by name; an unknown permission aborts the whole call.
func (s *Store) SetRolePermissions(ctx context.Context, roleName string, permissionNames []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var roleID string
	err = tx.QueryRowContext(ctx, `select id from roles where name = $1`, roleName).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authkernel.ErrRoleNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}

	for _, name := range permissionNames {
		var permID string
		err := tx.QueryRowContext(ctx, `select id from permissions where name = $1`, name).Scan(&permID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("permission %q not found", name)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CreateRole inserts a role with its permission associations. Permissions
// must already exist; they are matched by name.
func (s *Store) CreateRole(ctx context.Context, role *rbac.Role, permissionNames []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, role.ID, role.Name, nullIfEmpty(role.Description))
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authkernel.ErrAlreadyExists
		}
		return err
	}

	for _, name := range permissionNames {
		var permID string
		err := tx.QueryRowContext(ctx, `select id from permissions where name = $1`, name).Scan(&permID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("permission %q not found", name)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
			on conflict do nothing
		`, role.ID, permID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CreatePermission inserts a permission definition.
func (s *Store) CreatePermission(ctx context.Context, perm *rbac.Permission) error {
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, resource, action, description)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, perm.ID, perm.Name, perm.Resource, perm.Action, nullIfEmpty(perm.Description))
	if err := row.Scan(&perm.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authkernel.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) permissionsOfRole(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.resource, p.action, coalesce(p.description, ''), p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]rbac.Permission, error) {
	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
