package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridepool/internal/domain"
	"ridepool/internal/repository"
)

const bookingColumns = `id, trip_id, passenger_id, seats_booked, total_price, booking_token,
		status, payment_status, cancelled_by, cancellation_reason, cancelled_at, created_at`

// BookingRepository is a PostgreSQL implementation of
// repository.BookingRepository.
type BookingRepository struct {
	q Querier
}

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

// NewBookingRepositoryWithTx creates a booking repository using a transaction.
func NewBookingRepositoryWithTx(tx *sql.Tx) *BookingRepository {
	return &BookingRepository{q: tx}
}

// Create persists a new booking. The booking_token unique index and the
// partial unique index on confirmed (trip_id, passenger_id) pairs back
// the ErrDuplicate return.
func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	query := `
		INSERT INTO bookings (id, trip_id, passenger_id, seats_booked, total_price, booking_token, status, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		booking.ID,
		booking.TripID,
		booking.PassengerID,
		booking.SeatsBooked,
		booking.TotalPrice,
		booking.Token,
		booking.Status,
		booking.PaymentStatus,
		booking.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return err
	}

	return nil
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByToken retrieves a booking by its idempotency token.
func (r *BookingRepository) GetByToken(ctx context.Context, token string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_token = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, token))
}

// GetConfirmedByTripAndPassenger retrieves the confirmed booking a
// passenger holds on a trip.
func (r *BookingRepository) GetConfirmedByTripAndPassenger(ctx context.Context, tripID, passengerID string) (*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE trip_id = $1 AND passenger_id = $2 AND status = $3
	`
	return r.scanOne(r.q.QueryRowContext(ctx, query, tripID, passengerID, domain.BookingStatusConfirmed))
}

// ListConfirmedByTrip retrieves all confirmed bookings on a trip with
// passenger contact data for notification.
func (r *BookingRepository) ListConfirmedByTrip(ctx context.Context, tripID string) ([]*domain.BookingContact, error) {
	query := `
		SELECT b.id, b.trip_id, b.passenger_id, b.seats_booked, b.total_price, b.booking_token,
		       b.status, b.payment_status, b.cancelled_by, b.cancellation_reason, b.cancelled_at, b.created_at,
		       u.email, u.first_name, u.last_name
		FROM bookings b
		JOIN users u ON b.passenger_id = u.id
		WHERE b.trip_id = $1 AND b.status = $2
	`

	rows, err := r.q.QueryContext(ctx, query, tripID, domain.BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*domain.BookingContact
	for rows.Next() {
		var c domain.BookingContact
		var cancelledBy, reason sql.NullString
		var cancelledAt sql.NullTime
		var firstName, lastName string

		if err := rows.Scan(
			&c.Booking.ID,
			&c.Booking.TripID,
			&c.Booking.PassengerID,
			&c.Booking.SeatsBooked,
			&c.Booking.TotalPrice,
			&c.Booking.Token,
			&c.Booking.Status,
			&c.Booking.PaymentStatus,
			&cancelledBy,
			&reason,
			&cancelledAt,
			&c.Booking.CreatedAt,
			&c.PassengerEmail,
			&firstName,
			&lastName,
		); err != nil {
			return nil, err
		}

		applyCancellation(&c.Booking, cancelledBy, reason, cancelledAt)
		c.PassengerName = firstName + " " + lastName
		contacts = append(contacts, &c)
	}

	return contacts, rows.Err()
}

// ListByPassenger retrieves all bookings made by a passenger, newest first.
func (r *BookingRepository) ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE passenger_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`

	rows, err := r.q.QueryContext(ctx, query, passengerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// Cancel transitions a single confirmed booking to cancelled.
func (r *BookingRepository) Cancel(ctx context.Context, id string, by domain.CancelActor, reason string, at time.Time) error {
	query := `
		UPDATE bookings
		SET status = $1, cancelled_by = $2, cancellation_reason = $3, cancelled_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.BookingStatusCancelled, by, reason, at, id, domain.BookingStatusConfirmed,
	)
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

// CancelAllForTrip transitions every confirmed booking on a trip to
// cancelled and returns the number of rows affected.
func (r *BookingRepository) CancelAllForTrip(ctx context.Context, tripID string, by domain.CancelActor, reason string, at time.Time) (int, error) {
	query := `
		UPDATE bookings
		SET status = $1, cancelled_by = $2, cancellation_reason = $3, cancelled_at = $4
		WHERE trip_id = $5 AND status = $6
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.BookingStatusCancelled, by, reason, at, tripID, domain.BookingStatusConfirmed,
	)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(rowsAffected), nil
}

func scanBooking(s rowScanner) (*domain.Booking, error) {
	var booking domain.Booking
	var cancelledBy, reason sql.NullString
	var cancelledAt sql.NullTime

	err := s.Scan(
		&booking.ID,
		&booking.TripID,
		&booking.PassengerID,
		&booking.SeatsBooked,
		&booking.TotalPrice,
		&booking.Token,
		&booking.Status,
		&booking.PaymentStatus,
		&cancelledBy,
		&reason,
		&cancelledAt,
		&booking.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	applyCancellation(&booking, cancelledBy, reason, cancelledAt)

	return &booking, nil
}

func applyCancellation(b *domain.Booking, by, reason sql.NullString, at sql.NullTime) {
	if by.Valid {
		b.CancelledBy = domain.CancelActor(by.String)
	}
	if reason.Valid {
		b.CancellationReason = reason.String
	}
	if at.Valid {
		b.CancelledAt = at.Time
	}
}

func (r *BookingRepository) scanOne(row *sql.Row) (*domain.Booking, error) {
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return booking, nil
}

// Ensure BookingRepository implements repository.BookingRepository.
var _ repository.BookingRepository = (*BookingRepository)(nil)
