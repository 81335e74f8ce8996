package account

import (
	"context"

	"github.com/ignite/investwise/internal/domain"
)

// AuthProvider is the hosted auth service.
type AuthProvider interface {
	// SignUp registers the user and returns the new user id.
	SignUp(ctx context.Context, reg domain.Registration) (string, error)
	SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
}

// ProfileDirectory reads and writes the profiles table.
type ProfileDirectory interface {
	// Exists reports whether any profile has column ("email", "phone" or
	// "pan") equal to value.
	Exists(ctx context.Context, column, value string) (bool, error)
	Create(ctx context.Context, p domain.Profile) error
}
