// Package rbac models the User/Role/Permission graph and evaluates
// effective permissions.
//
// Effective permissions are the union of the permissions of every role a
// user holds. There is no deny rule and no priority between roles; absence
// of a matching permission is simply "not authorized". A superuser is a
// role that holds every permission, never a bypass inside the evaluator.
//
// The [Evaluator] memoizes computed permission sets per user. Any write
// that changes a user's role or permission assignments must invalidate the
// affected entries through [Evaluator.Invalidate] — authorization decisions
// tolerate no staleness beyond that path.
package rbac
