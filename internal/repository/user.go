package repository

import (
	"context"

	"ridepool/internal/domain"
)

// UserRepository defines the persistence operations for users.
type UserRepository interface {
	// Create persists a new user. Returns ErrDuplicate when the email
	// is already registered.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByVerificationToken retrieves a user by verification token.
	GetByVerificationToken(ctx context.Context, token string) (*domain.User, error)

	// MarkVerified flags the user's account as verified.
	MarkVerified(ctx context.Context, id string) error

	// IncrementRidesOffered bumps the driver's published-trip counter.
	IncrementRidesOffered(ctx context.Context, id string) error

	// IncrementRidesTaken bumps the passenger's booked-trip counter.
	IncrementRidesTaken(ctx context.Context, id string) error
}
