package repository

import (
	"context"

	"otp-auth/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	// Create inserts u. A second user with the same phone number yields autherr.Conflict.
	Create(ctx context.Context, u *domain.User) error
	// SetRoles replaces the user's roles. NotFound when the user does not exist.
	SetRoles(ctx context.Context, id string, roles []string) error
}
