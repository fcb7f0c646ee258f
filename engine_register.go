package authkernel

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/authkernel/authkernel/username"
)

// Register creates a user with its initial roles as one transactional
// unit. The handle comes from PreferredUsername when it is valid and
// free, otherwise it is derived from the profile names with collision
// suffixes.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*UserRecord, error) {
	if e == nil || e.hasher == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		e.metricInc(MetricRegisterFailure)
		return nil, ErrUsernameInvalid
	}

	if strength := e.policy.Assess(input.Password); !strength.Valid {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventUserCreationFailure, false, "", "", ErrWeakPassword, func() map[string]string {
			return map[string]string{"email": email, "reason": strength.Reason}
		})
		return nil, ErrWeakPassword
	}

	for _, roleName := range input.RoleNames {
		normalized, ok := rbacRoleName(roleName)
		if !ok {
			e.metricInc(MetricRegisterFailure)
			e.emitAudit(ctx, auditEventUserCreationFailure, false, "", "", ErrRoleNotFound, func() map[string]string {
				return map[string]string{"email": email, "role": roleName}
			})
			return nil, ErrRoleNotFound
		}
		exists, err := e.roles.RoleExists(ctx, normalized)
		if err != nil {
			e.metricInc(MetricRegisterFailure)
			return nil, err
		}
		if !exists {
			e.metricInc(MetricRegisterFailure)
			e.emitAudit(ctx, auditEventUserCreationFailure, false, "", "", ErrRoleNotFound, func() map[string]string {
				return map[string]string{"email": email, "role": normalized}
			})
			return nil, ErrRoleNotFound
		}
	}

	if taken, err := e.users.EmailExists(ctx, email); err != nil {
		e.metricInc(MetricRegisterFailure)
		return nil, err
	} else if taken {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventUserCreationFailure, false, "", "", ErrAlreadyExists, func() map[string]string {
			return map[string]string{"email": email, "reason": "duplicate_email"}
		})
		return nil, ErrAlreadyExists
	}

	handle, err := e.resolveHandle(ctx, input)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventUserCreationFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, err
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		return nil, err
	}
	input.Password = ""

	now := e.now()
	user := &UserRecord{
		ID:           uuid.NewString(),
		Username:     handle,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	roleNames := make([]string, 0, len(input.RoleNames))
	for _, roleName := range input.RoleNames {
		normalized, _ := rbacRoleName(roleName)
		roleNames = append(roleNames, normalized)
	}

	// The store is the final arbiter on uniqueness: a concurrent insert
	// surfaces here as ErrAlreadyExists even though the checks above passed.
	// When the handle was generated, a collision means another registration
	// grabbed it in the meantime; resolve a fresh one and retry, bounded.
	saveErr := e.users.SaveWithRoles(ctx, user, roleNames)
	for attempt := 0; saveErr != nil && attempt < 2; attempt++ {
		if !errors.Is(saveErr, ErrAlreadyExists) || input.PreferredUsername != "" {
			break
		}
		handle, err = e.resolveHandle(ctx, input)
		if err != nil {
			break
		}
		user.Username = handle
		saveErr = e.users.SaveWithRoles(ctx, user, roleNames)
	}
	if saveErr != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventUserCreationFailure, false, "", "", saveErr, func() map[string]string {
			return map[string]string{"email": email, "username": user.Username}
		})
		return nil, saveErr
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventUserCreated, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email, "username": handle}
	})
	for _, roleName := range roleNames {
		role := roleName
		e.emitAudit(ctx, auditEventRoleAssigned, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{"role": role}
		})
	}

	return user, nil
}

// ValidateUsername reports every rule the candidate handle violates.
func (e *Engine) ValidateUsername(handle string) username.ValidationResult {
	return username.Validate(handle)
}

// SuggestUsername derives an available handle from profile names without
// creating anything.
func (e *Engine) SuggestUsername(ctx context.Context, firstName, lastName string) (string, error) {
	if e == nil || e.usernames == nil {
		return "", ErrEngineNotReady
	}
	return e.usernames.Generate(ctx, firstName, lastName)
}

func (e *Engine) resolveHandle(ctx context.Context, input RegisterInput) (string, error) {
	if preferred := strings.TrimSpace(input.PreferredUsername); preferred != "" {
		normalized := username.Normalize(preferred)
		if result := username.Validate(normalized); !result.Valid {
			return "", ErrUsernameInvalid
		}
		taken, err := e.users.UsernameExists(ctx, normalized)
		if err != nil {
			return "", err
		}
		if taken {
			return "", ErrAlreadyExists
		}
		return normalized, nil
	}

	return e.usernames.Generate(ctx, input.FirstName, input.LastName)
}
