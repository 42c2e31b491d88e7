package service

import "errors"

var (
	// ErrInvalidTripID is returned when the trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidBookingID is returned when the booking ID is empty.
	ErrInvalidBookingID = errors.New("invalid booking id")

	// ErrInvalidPassengerID is returned when the passenger ID is empty.
	ErrInvalidPassengerID = errors.New("invalid passenger id")

	// ErrInvalidSeatCount is returned when the requested seat count is
	// less than one.
	ErrInvalidSeatCount = errors.New("seat count must be at least 1")

	// ErrMissingFields is returned when a required request field is empty.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidUserType is returned when the user type is not one of
	// driver, passenger or both.
	ErrInvalidUserType = errors.New("invalid user type")

	// ErrWeakPassword is returned when the password is too short.
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// ErrSelfBooking is returned when a driver attempts to book their
	// own trip.
	ErrSelfBooking = errors.New("cannot book your own trip")

	// ErrAlreadyBooked is returned when the passenger already holds a
	// confirmed booking on the trip.
	ErrAlreadyBooked = errors.New("trip already booked")

	// ErrTokenInUse is returned when a booking token is presented by a
	// passenger, or against a trip, it was not issued for. The prior
	// result is never disclosed on this path.
	ErrTokenInUse = errors.New("booking token already in use")

	// ErrInsufficientSeats is returned when the trip cannot cover the
	// requested seat count.
	ErrInsufficientSeats = errors.New("not enough available seats")

	// ErrNotTripOwner is returned when someone other than the trip's
	// driver attempts an owner-only operation.
	ErrNotTripOwner = errors.New("not the trip owner")

	// ErrNotBookingOwner is returned when someone other than the booking's
	// passenger attempts to cancel it.
	ErrNotBookingOwner = errors.New("not the booking owner")

	// ErrNotADriver is returned when a passenger-only account attempts to
	// publish a trip.
	ErrNotADriver = errors.New("only drivers can offer trips")

	// ErrTripAlreadyCancelled is returned when cancelling an already
	// cancelled trip.
	ErrTripAlreadyCancelled = errors.New("trip already cancelled")

	// ErrTripCompleted is returned when mutating a completed trip.
	ErrTripCompleted = errors.New("trip already completed")

	// ErrBookingAlreadyCancelled is returned when cancelling an already
	// cancelled booking.
	ErrBookingAlreadyCancelled = errors.New("booking already cancelled")

	// ErrEmailTaken is returned when registering an email that already
	// has an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned when login credentials do not
	// match an account.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountNotVerified is returned when logging in before the
	// verification mail was confirmed.
	ErrAccountNotVerified = errors.New("account not verified")

	// ErrStoreBusy is returned when the trip lock could not be acquired
	// within the wait budget. Safe to retry with the same booking token.
	ErrStoreBusy = errors.New("store busy, retry")
)
