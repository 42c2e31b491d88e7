package repository

import (
	"context"

	"ridepool/internal/domain"
)

// TripSearch contains the filters for searching published trips.
type TripSearch struct {
	From     string
	To       string
	DateFrom string // YYYY-MM-DD floor; empty means today is supplied by the caller
	MinSeats int
}

// TripRepository defines the persistence operations for trips.
//
// The seat mutators (ReserveSeats, ReleaseSeats, MarkCancelled,
// MarkCompleted) must only be invoked through a Tx obtained from a
// TxRunner: a crash between a seat write and the matching booking write
// would leave the inventory inconsistent with the ledger.
type TripRepository interface {
	// Create persists a new trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// GetByIDForUpdate retrieves a trip by ID holding an exclusive
	// row lock until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error)

	// Search retrieves active trips matching the filters.
	Search(ctx context.Context, q TripSearch) ([]*domain.Trip, error)

	// ListByDriver retrieves all trips published by a driver.
	ListByDriver(ctx context.Context, driverID string) ([]*domain.Trip, error)

	// ReserveSeats decrements available seats by seatCount and flips the
	// status to full when the count reaches zero. It returns the updated
	// trip. The caller must already hold the row lock and have verified
	// the preconditions.
	ReserveSeats(ctx context.Context, id string, seatCount int) (*domain.Trip, error)

	// ReleaseSeats increments available seats by seatCount and flips a
	// full trip back to active. It returns the updated trip.
	ReleaseSeats(ctx context.Context, id string, seatCount int) (*domain.Trip, error)

	// MarkCancelled sets the trip status to cancelled.
	MarkCancelled(ctx context.Context, id string) error

	// MarkCompleted sets the trip status to completed.
	MarkCompleted(ctx context.Context, id string) error
}
