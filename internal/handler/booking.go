package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepool/internal/middleware"
	"ridepool/internal/service"
)

// BookingHandler handles HTTP requests for bookings.
type BookingHandler struct {
	bookingService *service.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookingService *service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// BookRequest is the HTTP request body for booking seats on a trip.
type BookRequest struct {
	Seats int `json:"seats"`
}

// Book handles POST /v1/trips/:id/book
func (h *BookingHandler) Book(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.bookingService.Book(c.Request.Context(), service.BookRequest{
		TripID:      c.Param("id"),
		PassengerID: principal.UserID,
		SeatCount:   req.Seats,
		Token:       c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respondJSON(c, status, gin.H{
		"booking_id":    result.BookingID,
		"booking_token": result.Token,
		"seats":         result.Seats,
		"total_price":   result.TotalPrice,
	})
}

// CancelBookingRequest is the HTTP request body for cancelling a booking.
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /v1/bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CancelBookingRequest
	_ = c.ShouldBindJSON(&req)

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), service.CancelBookingRequest{
		BookingID:   c.Param("id"),
		PassengerID: principal.UserID,
		Reason:      req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"message":    "booking cancelled",
		"booking_id": booking.ID,
		"trip_id":    booking.TripID,
	})
}

// BookingResponse is the HTTP response for booking data.
type BookingResponse struct {
	ID          string  `json:"id"`
	TripID      string  `json:"trip_id"`
	Seats       int     `json:"seats"`
	TotalPrice  float64 `json:"total_price"`
	Status      string  `json:"status"`
	CancelledBy string  `json:"cancelled_by,omitempty"`
	Reason      string  `json:"cancellation_reason,omitempty"`
}

// List handles GET /v1/bookings
func (h *BookingHandler) List(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	bookings, err := h.bookingService.ListByPassenger(c.Request.Context(), principal.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		response = append(response, BookingResponse{
			ID:          b.ID,
			TripID:      b.TripID,
			Seats:       b.SeatsBooked,
			TotalPrice:  b.TotalPrice,
			Status:      string(b.Status),
			CancelledBy: string(b.CancelledBy),
			Reason:      b.CancellationReason,
		})
	}

	respondJSON(c, http.StatusOK, gin.H{"bookings": response})
}
