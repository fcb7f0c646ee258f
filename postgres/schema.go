package postgres

import "context"

// Schema is the reference DDL for the store. Deployments with their own
// migration tooling should treat it as documentation.
const Schema = `
create table if not exists users (
	id            text primary key,
	username      text not null,
	email         text not null,
	password_hash text not null,
	first_name    text not null default '',
	last_name     text not null default '',
	active        boolean not null default true,
	created_at    timestamptz not null default now(),
	updated_at    timestamptz not null default now()
);
create unique index if not exists users_username_lower_idx on users (lower(username));
create unique index if not exists users_email_lower_idx on users (lower(email));

create table if not exists roles (
	id          text primary key,
	name        text not null unique,
	description text,
	created_at  timestamptz not null default now(),
	updated_at  timestamptz not null default now()
);

create table if not exists permissions (
	id          text primary key,
	name        text not null unique,
	resource    text not null,
	action      text not null,
	description text,
	created_at  timestamptz not null default now()
);

create table if not exists role_permissions (
	role_id       text not null references roles(id) on delete cascade,
	permission_id text not null references permissions(id) on delete cascade,
	primary key (role_id, permission_id)
);

create table if not exists user_roles (
	user_id    text not null references users(id) on delete cascade,
	role_id    text not null references roles(id) on delete cascade,
	created_at timestamptz not null default now(),
	primary key (user_id, role_id)
);
`

// EnsureSchema applies the reference DDL. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}
