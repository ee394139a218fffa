package repository

import (
	"context"

	"github.com/carelink-solutions/carelink-auth/internal/domain"
)

// UserRepository is the credential store. Implementations report a missing
// user as apperrors.ErrNotFound and an email collision as
// apperrors.ErrAlreadyExists. Emails are stored already normalized.
type UserRepository interface {
	// Create assigns the id and timestamps and inserts the user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// List returns one page of users ordered by creation time, newest first,
	// and the total number of users.
	List(ctx context.Context, offset, limit int) ([]domain.User, int, error)

	// Update replaces the stored profile and credentials and refreshes
	// UpdatedAt. The token version is never overwritten: it is incremented in
	// the same write when bumpTokenVersion is set, and the stored value is
	// copied back into user.TokenVersion.
	Update(ctx context.Context, user *domain.User, bumpTokenVersion bool) error

	// Delete removes a user and returns the record as it was.
	Delete(ctx context.Context, id string) (*domain.User, error)

	// IncrementTokenVersion atomically bumps the user's token version and
	// returns the new value.
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
}
