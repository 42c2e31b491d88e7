package repository

import "context"

// Tx exposes transaction-scoped repositories. Every read and write made
// through a Tx belongs to the same atomic unit.
type Tx interface {
	Trips() TripRepository
	Bookings() BookingRepository
	Users() UserRepository
}

// TxRunner executes a function inside a transaction. If fn returns an
// error the transaction is rolled back and the error is returned;
// otherwise the transaction is committed. Either all effects made through
// the Tx land, or none do.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
