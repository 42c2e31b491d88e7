package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"ridepool/internal/repository"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// TxRunner runs functions inside PostgreSQL transactions.
type TxRunner struct {
	db *sql.DB
}

// NewTxRunner creates a TxRunner over the given database handle.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

// InTx begins a transaction, hands transaction-scoped repositories to fn,
// and commits when fn returns nil. Any error from fn or from commit rolls
// the whole unit back.
func (r *TxRunner) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	t := &tx{sqlTx: sqlTx}

	if err := fn(t); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	return sqlTx.Commit()
}

// tx implements repository.Tx over a *sql.Tx.
type tx struct {
	sqlTx *sql.Tx
}

func (t *tx) Trips() repository.TripRepository {
	return NewTripRepositoryWithTx(t.sqlTx)
}

func (t *tx) Bookings() repository.BookingRepository {
	return NewBookingRepositoryWithTx(t.sqlTx)
}

func (t *tx) Users() repository.UserRepository {
	return NewUserRepositoryWithTx(t.sqlTx)
}

var _ repository.TxRunner = (*TxRunner)(nil)

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
