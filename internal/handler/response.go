package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepool/internal/repository"
	"ridepool/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
// Conflict reasons reach the caller as stable message strings, never
// coerced into a generic failure.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidTripID),
		errors.Is(err, service.ErrInvalidBookingID),
		errors.Is(err, service.ErrInvalidPassengerID),
		errors.Is(err, service.ErrInvalidSeatCount),
		errors.Is(err, service.ErrMissingFields),
		errors.Is(err, service.ErrInvalidUserType),
		errors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest

	// Authentication errors
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized

	// Authorization / business rule errors
	case errors.Is(err, service.ErrSelfBooking),
		errors.Is(err, service.ErrNotTripOwner),
		errors.Is(err, service.ErrNotBookingOwner),
		errors.Is(err, service.ErrNotADriver),
		errors.Is(err, service.ErrAccountNotVerified):
		return http.StatusForbidden

	// Conflict errors
	case errors.Is(err, service.ErrAlreadyBooked),
		errors.Is(err, service.ErrTokenInUse),
		errors.Is(err, service.ErrInsufficientSeats),
		errors.Is(err, service.ErrTripAlreadyCancelled),
		errors.Is(err, service.ErrTripCompleted),
		errors.Is(err, service.ErrBookingAlreadyCancelled),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict

	// Retryable store contention
	case errors.Is(err, service.ErrStoreBusy):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
