package repository

import (
	"context"
	"time"

	"ridepool/internal/domain"
)

// BookingRepository defines the persistence operations for the booking
// ledger. The ledger is append-then-transition: bookings are never
// physically deleted.
type BookingRepository interface {
	// Create persists a new booking. It returns ErrDuplicate when the
	// booking token or the confirmed (trip, passenger) pair already
	// exists.
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetByToken retrieves a booking by its idempotency token.
	// Returns ErrNotFound when no booking carries the token.
	GetByToken(ctx context.Context, token string) (*domain.Booking, error)

	// GetConfirmedByTripAndPassenger retrieves the confirmed booking a
	// passenger holds on a trip, or ErrNotFound.
	GetConfirmedByTripAndPassenger(ctx context.Context, tripID, passengerID string) (*domain.Booking, error)

	// ListConfirmedByTrip retrieves all confirmed bookings on a trip
	// together with passenger contact data for notification.
	ListConfirmedByTrip(ctx context.Context, tripID string) ([]*domain.BookingContact, error)

	// ListByPassenger retrieves all bookings made by a passenger.
	ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Booking, error)

	// Cancel transitions a single booking to cancelled with the given
	// metadata.
	Cancel(ctx context.Context, id string, by domain.CancelActor, reason string, at time.Time) error

	// CancelAllForTrip transitions every confirmed booking on a trip to
	// cancelled with the given metadata and returns the number of rows
	// affected.
	CancelAllForTrip(ctx context.Context, tripID string, by domain.CancelActor, reason string, at time.Time) (int, error)
}
