package domain

import "time"

// TripStatus represents the current status of a published trip.
type TripStatus string

const (
	TripStatusActive    TripStatus = "active"
	TripStatusFull      TripStatus = "full"
	TripStatusCancelled TripStatus = "cancelled"
	TripStatusCompleted TripStatus = "completed"
)

// Terminal reports whether no transition leaves this status.
func (s TripStatus) Terminal() bool {
	return s == TripStatusCancelled || s == TripStatusCompleted
}

// Trip represents a driver-published journey with fixed capacity and fare.
// AvailableSeats always equals TotalSeats minus the seats held by confirmed
// bookings on the trip.
type Trip struct {
	ID             string
	DriverID       string
	FromLocation   string
	ToLocation     string
	DepartureDate  string // opaque YYYY-MM-DD
	DepartureTime  string // opaque HH:MM
	TotalSeats     int
	AvailableSeats int
	PricePerSeat   float64
	Description    string
	Status         TripStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
