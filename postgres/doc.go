// Package postgres implements the engine's user and role persistence
// ports on PostgreSQL.
//
// The store goes through database/sql with the pgx stdlib driver, so any
// compatible pool works. Uniqueness of usernames and emails is enforced
// by case-insensitive unique indexes; a violation surfaces as
// [authkernel.ErrAlreadyExists], missing rows as
// [authkernel.ErrUserNotFound] or [authkernel.ErrRoleNotFound].
package postgres
