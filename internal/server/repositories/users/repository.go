// Package users declares the storage contract for accounts, their roles and
// their external-login links.
package users

import (
	"context"

	"github.com/QKhanh04/innerg-api/internal/server/models"
)

// Repository persists users. Lookups by name and email are case-insensitive.
// Missing rows are reported as common.ErrorNotFound and unique violations as
// common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// Update writes every mutable column of user.
	Update(ctx context.Context, user *models.User) error
	// Delete removes the user with its roles, logins and tokens.
	Delete(ctx context.Context, id string) error

	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUserName(ctx context.Context, userName string) (*models.User, error)
	// LockByID reads the user and holds its row lock until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, id string) (*models.User, error)

	EnsureRole(ctx context.Context, role string) error
	RoleExists(ctx context.Context, role string) (bool, error)
	GetRoles(ctx context.Context, userID string) ([]string, error)
	AddToRole(ctx context.Context, userID, role string) error
	RemoveFromRole(ctx context.Context, userID, role string) error

	AddLogin(ctx context.Context, login models.ExternalLogin) error
	RemoveLogin(ctx context.Context, userID, provider string) error
	FindByLogin(ctx context.Context, provider, providerKey string) (*models.User, error)
}
