package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint (booking token, confirmed trip/passenger pair, email).
	ErrDuplicate = errors.New("duplicate entity")
)
