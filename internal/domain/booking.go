package domain

import "time"

// BookingStatus represents the current status of a booking.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// PaymentStatus is tracked on a booking but never computed here;
// settlement is an external concern.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// CancelActor identifies who cancelled a booking.
type CancelActor string

const (
	CancelledByDriver    CancelActor = "driver"
	CancelledByPassenger CancelActor = "passenger"
)

// Booking represents a passenger's reservation of seats on a trip.
// Token is the opaque idempotency token issued at creation; a repeated
// book call carrying the same token returns this booking instead of
// creating a second one.
type Booking struct {
	ID            string
	TripID        string
	PassengerID   string
	SeatsBooked   int
	TotalPrice    float64
	Token         string
	Status        BookingStatus
	PaymentStatus PaymentStatus

	// Cancellation metadata, populated only when Status is cancelled.
	CancelledBy        CancelActor
	CancellationReason string
	CancelledAt        time.Time

	CreatedAt time.Time
}

// BookingContact pairs a cancelled or confirmed booking with enough
// passenger contact data to notify them.
type BookingContact struct {
	Booking        Booking
	PassengerEmail string
	PassengerName  string
}
