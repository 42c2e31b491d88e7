package domain

import "time"

// UserType classifies what a user may do on the platform.
type UserType string

const (
	UserTypeDriver    UserType = "driver"
	UserTypePassenger UserType = "passenger"
	UserTypeBoth      UserType = "both"
)

// CanDrive reports whether the user may publish trips.
func (t UserType) CanDrive() bool {
	return t == UserTypeDriver || t == UserTypeBoth
}

// User represents an account in the system.
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	UserType          UserType
	Verified          bool
	VerificationToken string
	Rating            float64
	TotalRidesOffered int
	TotalRidesTaken   int
	CreatedAt         time.Time
}

// FullName returns the display name used in notifications.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
