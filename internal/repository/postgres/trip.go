package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridepool/internal/domain"
	"ridepool/internal/repository"
)

const tripColumns = `id, driver_id, from_location, to_location, departure_date, departure_time,
		total_seats, available_seats, price_per_seat, description, status, created_at, updated_at`

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.q.ExecContext(ctx, query,
		trip.ID,
		trip.DriverID,
		trip.FromLocation,
		trip.ToLocation,
		trip.DepartureDate,
		trip.DepartureTime,
		trip.TotalSeats,
		trip.AvailableSeats,
		trip.PricePerSeat,
		trip.Description,
		trip.Status,
		trip.CreatedAt,
		trip.UpdatedAt,
	)

	return err
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate retrieves a trip by ID holding an exclusive row lock
// until the surrounding transaction ends. All mutating operations on the
// same trip serialize on this lock.
func (r *TripRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// Search retrieves active trips matching the filters, soonest first.
func (r *TripRepository) Search(ctx context.Context, q repository.TripSearch) ([]*domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE LOWER(from_location) LIKE LOWER($1)
		  AND LOWER(to_location) LIKE LOWER($2)
		  AND departure_date >= $3
		  AND available_seats >= $4
		  AND status = $5
		ORDER BY departure_date ASC, departure_time ASC
		LIMIT 100
	`

	rows, err := r.q.QueryContext(ctx, query,
		"%"+q.From+"%",
		"%"+q.To+"%",
		q.DateFrom,
		q.MinSeats,
		domain.TripStatusActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListByDriver retrieves all trips published by a driver, newest first.
func (r *TripRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE driver_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`

	rows, err := r.q.QueryContext(ctx, query, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ReserveSeats decrements available seats and flips the status to full in
// a single statement when the count reaches zero. The caller holds the
// row lock and has already verified status and availability.
func (r *TripRepository) ReserveSeats(ctx context.Context, id string, seatCount int) (*domain.Trip, error) {
	query := `
		UPDATE trips
		SET available_seats = available_seats - $1,
		    status = CASE WHEN available_seats - $1 = 0 THEN 'full' ELSE status END,
		    updated_at = NOW()
		WHERE id = $2 AND available_seats >= $1
		RETURNING ` + tripColumns

	return r.scanOne(r.q.QueryRowContext(ctx, query, seatCount, id))
}

// ReleaseSeats increments available seats and flips a full trip back to
// active in the same statement.
func (r *TripRepository) ReleaseSeats(ctx context.Context, id string, seatCount int) (*domain.Trip, error) {
	query := `
		UPDATE trips
		SET available_seats = available_seats + $1,
		    status = CASE WHEN status = 'full' THEN 'active' ELSE status END,
		    updated_at = NOW()
		WHERE id = $2 AND available_seats + $1 <= total_seats
		RETURNING ` + tripColumns

	return r.scanOne(r.q.QueryRowContext(ctx, query, seatCount, id))
}

// MarkCancelled sets the trip status to cancelled.
func (r *TripRepository) MarkCancelled(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.TripStatusCancelled)
}

// MarkCompleted sets the trip status to completed.
func (r *TripRepository) MarkCompleted(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.TripStatusCompleted)
}

func (r *TripRepository) setStatus(ctx context.Context, id string, status domain.TripStatus) error {
	query := `UPDATE trips SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(s rowScanner) (*domain.Trip, error) {
	var trip domain.Trip
	var description sql.NullString

	err := s.Scan(
		&trip.ID,
		&trip.DriverID,
		&trip.FromLocation,
		&trip.ToLocation,
		&trip.DepartureDate,
		&trip.DepartureTime,
		&trip.TotalSeats,
		&trip.AvailableSeats,
		&trip.PricePerSeat,
		&description,
		&trip.Status,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		trip.Description = description.String
	}

	return &trip, nil
}

func (r *TripRepository) scanOne(row *sql.Row) (*domain.Trip, error) {
	trip, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

func (r *TripRepository) scanAll(rows *sql.Rows) ([]*domain.Trip, error) {
	var trips []*domain.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
