package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridepool/internal/domain"
	"ridepool/internal/repository"
)

const userColumns = `id, email, password_hash, first_name, last_name, user_type, verified,
		verification_token, rating, total_rides_offered, total_rides_taken, created_at`

// UserRepository is a PostgreSQL implementation of repository.UserRepository.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{q: db}
}

// NewUserRepositoryWithTx creates a user repository using a transaction.
func NewUserRepositoryWithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.UserType,
		user.Verified,
		user.VerificationToken,
		user.Rating,
		user.TotalRidesOffered,
		user.TotalRidesTaken,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return err
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.scanOne(r.q.QueryRowContext(ctx, query, email))
}

// GetByVerificationToken retrieves a user by verification token.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE verification_token = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, token))
}

// MarkVerified flags the user's account as verified.
func (r *UserRepository) MarkVerified(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET verified = TRUE, verification_token = NULL WHERE id = $1`, id)
}

// IncrementRidesOffered bumps the driver's published-trip counter.
func (r *UserRepository) IncrementRidesOffered(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET total_rides_offered = total_rides_offered + 1 WHERE id = $1`, id)
}

// IncrementRidesTaken bumps the passenger's booked-trip counter.
func (r *UserRepository) IncrementRidesTaken(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET total_rides_taken = total_rides_taken + 1 WHERE id = $1`, id)
}

func (r *UserRepository) exec(ctx context.Context, query, id string) error {
	result, err := r.q.ExecContext(ctx, query, id)
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

func (r *UserRepository) scanOne(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var verificationToken sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.UserType,
		&user.Verified,
		&verificationToken,
		&user.Rating,
		&user.TotalRidesOffered,
		&user.TotalRidesTaken,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if verificationToken.Valid {
		user.VerificationToken = verificationToken.String
	}

	return &user, nil
}

// Ensure UserRepository implements repository.UserRepository.
var _ repository.UserRepository = (*UserRepository)(nil)
