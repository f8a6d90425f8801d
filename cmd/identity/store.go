package identity

import (
	"context"
	"time"
)

// User is Wren's canonical security principal.
// PasswordHash is never part of this projection; see UserAuth.
type User struct {
	ID          string
	Email       string
	Username    string
	DisplayName string

	Bio       *string
	AvatarURL *string

	EmailVerified bool

	// ProviderID links an external OAuth identity once the account is linked.
	// A user may hold both a password hash and a provider id.
	ProviderID *string

	CreatedAt time.Time
}

// UserAuth carries the password hash alongside the public record.
// It exists only for credential verification paths and must never be
// serialized to clients or logs.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a user registration request.
// Password is plaintext here; the store hashes it before persistence.
type CreateUserInput struct {
	Email       string
	Username    string
	Password    string
	DisplayName string
	Now         time.Time
}

// CreateProviderUserInput creates an account from a first OAuth login.
// No password is set; the account is provider-origin until a password is added.
type CreateProviderUserInput struct {
	Email       string
	Username    string
	DisplayName string
	ProviderID  string
	Now         time.Time
}

// Store is the identity persistence boundary (the credential store).
//
// Comparison policy (shared by uniqueness and lookup):
// - email: case-insensitive (normalized lowercase)
// - username: exact match
type Store interface {
	// CreateUser registers a password-origin user with EmailVerified=false.
	// Returns ConflictError when the email or username is already taken.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// CreateProviderUser registers a provider-origin user (first OAuth login).
	CreateProviderUser(ctx context.Context, in CreateProviderUserInput) (User, error)

	// GetUserByLogin resolves a login identifier that may be an email or a
	// username. Returns ErrNotFound when neither matches.
	GetUserByLogin(ctx context.Context, identifier string) (UserAuth, error)

	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByProvider(ctx context.Context, providerID string) (User, error)

	// SetPasswordHash replaces the stored hash (password reset).
	SetPasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error

	// MarkEmailVerified flips the advisory verification flag.
	MarkEmailVerified(ctx context.Context, userID string, now time.Time) error

	// LinkProvider attaches an external provider id to an existing account.
	LinkProvider(ctx context.Context, userID, providerID string, now time.Time) error
}
