package repository

import (
	"context"

	"github.com/ErlanBelekov/otpauth/internal/domain"
)

// UserRepository persists identities. Lookups include the live challenge.
type UserRepository interface {
	// FindByEmail expects a normalized address. Returns domain.ErrUserNotFound
	// when no user exists.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// Create inserts the user and links it to input.RoleID. Creating an email
	// that already exists returns the existing user.
	Create(ctx context.Context, input domain.CreateUserInput) (*domain.User, error)

	// EnsureRole returns the role with the given name, creating it if needed.
	EnsureRole(ctx context.Context, name string) (*domain.Role, error)
}
