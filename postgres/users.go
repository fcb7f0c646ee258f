package postgres

import (
	"context"
	"database/sql"
	"errors"

	authkernel "github.com/authkernel/authkernel"
	"github.com/authkernel/authkernel/rbac"
)

var _ authkernel.UserStore = (*Store)(nil)

const userColumns = `id, username, email, password_hash, first_name, last_name, active, created_at, updated_at`

func (s *Store) GetByID(ctx context.Context, id string) (*authkernel.UserRecord, error) {
	return s.userBy(ctx, `where id = $1`, id)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*authkernel.UserRecord, error) {
	return s.userBy(ctx, `where lower(email) = lower($1)`, email)
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*authkernel.UserRecord, error) {
	return s.userBy(ctx, `where lower(username) = lower($1)`, username)
}

func (s *Store) userBy(ctx context.Context, where string, arg any) (*authkernel.UserRecord, error) {
	var user authkernel.UserRecord
	err := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users `+where,
		arg,
	).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Active,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authkernel.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	roles, err := s.rolesOfUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return &user, nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where lower(username) = lower($1))`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where lower(email) = lower($1))`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) List(ctx context.Context, opts authkernel.ListOptions) ([]authkernel.UserRecord, int, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	pattern := "%" + opts.Query + "%"

	var total int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from users
		where $1 = '%%'
		   or username ilike $1 or email ilike $1
		   or first_name ilike $1 or last_name ilike $1
	`, pattern).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+` from users
		where $1 = '%%'
		   or username ilike $1 or email ilike $1
		   or first_name ilike $1 or last_name ilike $1
		order by username
		offset $2 limit $3
	`, pattern, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []authkernel.UserRecord
	for rows.Next() {
		var user authkernel.UserRecord
		if err := rows.Scan(
			&user.ID, &user.Username, &user.Email, &user.PasswordHash,
			&user.FirstName, &user.LastName, &user.Active,
			&user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *Store) SaveWithRoles(ctx context.Context, user *authkernel.UserRecord, roleNames []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into users (id, username, email, password_hash, first_name, last_name, active)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (id) do update set
			username = excluded.username,
			email = excluded.email,
			password_hash = excluded.password_hash,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			active = excluded.active,
			updated_at = now()
		returning created_at, updated_at
	`, user.ID, user.Username, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Active)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authkernel.ErrAlreadyExists
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, user.ID); err != nil {
		return err
	}

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
		`, user.ID, roleID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $2, updated_at = now() where id = $1
	`, userID, hash)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authkernel.ErrUserNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update users set active = $2, updated_at = now() where id = $1
	`, userID, active)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authkernel.ErrUserNotFound
	}
	return nil
}

// rolesOfUser loads role rows without expanding permission sets. Callers
// needing permissions go through the role store's dedicated queries.
func (s *Store) rolesOfUser(ctx context.Context, userID string) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, coalesce(r.description, ''), r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}
