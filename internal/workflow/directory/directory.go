// Package directory resolves actor ids to their workflow role.
package directory

import (
	"context"
	"errors"

	"permit-workers/internal/common/auth"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/models"
	"permit-workers/internal/store"
)

// Directory looks up actors. Unknown actors yield a NOT_FOUND error.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*models.User, error)
}

// Store resolves roles from the users table.
type Store struct {
	users store.Users
}

func NewStore(users store.Users) *Store {
	return &Store{users: users}
}

func (d *Store) Lookup(ctx context.Context, userID string) (*models.User, error) {
	u, err := d.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("user", userID)
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	if !u.Role.Valid() {
		return nil, apperrors.NewForbiddenError("user " + userID + " has no workflow role")
	}
	return u, nil
}

// RoleSource returns the raw role names of a user.
type RoleSource interface {
	GetRealmRoles(ctx context.Context, userID string) ([]string, error)
}

// Keycloak resolves roles from Keycloak realm role mappings. When a user holds
// several workflow roles the most privileged one wins.
type Keycloak struct {
	roles RoleSource
}

func NewKeycloak(roles RoleSource) *Keycloak {
	return &Keycloak{roles: roles}
}

var rank = map[models.Role]int{
	models.RoleApplicant:  1,
	models.RoleInspector:  2,
	models.RoleAdmin:      3,
	models.RoleSuperAdmin: 4,
}

func (d *Keycloak) Lookup(ctx context.Context, userID string) (*models.User, error) {
	names, err := d.roles.GetRealmRoles(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, apperrors.NewNotFoundError("user", userID)
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}

	var best models.Role
	for _, name := range names {
		r, err := models.ParseRole(name)
		if err != nil {
			continue
		}
		if rank[r] > rank[best] {
			best = r
		}
	}
	if best == "" {
		return nil, apperrors.NewForbiddenError("user " + userID + " has no workflow role")
	}
	return &models.User{ID: userID, Role: best}, nil
}
