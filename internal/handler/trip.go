package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridepool/internal/domain"
	"ridepool/internal/middleware"
	"ridepool/internal/repository"
	"ridepool/internal/service"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	tripService *service.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// OfferTripRequest is the HTTP request body for publishing a trip.
type OfferTripRequest struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Seats       int     `json:"seats"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

// TripResponse is the HTTP response for trip data.
type TripResponse struct {
	ID             string  `json:"id"`
	DriverID       string  `json:"driver_id"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	TotalSeats     int     `json:"total_seats"`
	AvailableSeats int     `json:"available_seats"`
	PricePerSeat   float64 `json:"price_per_seat"`
	Description    string  `json:"description,omitempty"`
	Status         string  `json:"status"`
}

// Offer handles POST /v1/trips
func (h *TripHandler) Offer(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req OfferTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	trip, err := h.tripService.Offer(c.Request.Context(), service.OfferTripRequest{
		DriverID:      principal.UserID,
		FromLocation:  req.From,
		ToLocation:    req.To,
		DepartureDate: req.Date,
		DepartureTime: req.Time,
		TotalSeats:    req.Seats,
		PricePerSeat:  req.Price,
		Description:   req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toTripResponse(trip))
}

// Search handles GET /v1/trips/search
func (h *TripHandler) Search(c *gin.Context) {
	trips, err := h.tripService.Search(c.Request.Context(), repository.TripSearch{
		From:     c.Query("from"),
		To:       c.Query("to"),
		DateFrom: c.Query("date"),
		MinSeats: intQuery(c, "passengers", 1),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TripResponse, 0, len(trips))
	for _, trip := range trips {
		response = append(response, toTripResponse(trip))
	}

	respondJSON(c, http.StatusOK, gin.H{"trips": response})
}

// Get handles GET /v1/trips/:id
func (h *TripHandler) Get(c *gin.Context) {
	trip, err := h.tripService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// ListMine handles GET /v1/trips/mine
func (h *TripHandler) ListMine(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	trips, err := h.tripService.ListByDriver(c.Request.Context(), principal.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TripResponse, 0, len(trips))
	for _, trip := range trips {
		response = append(response, toTripResponse(trip))
	}

	respondJSON(c, http.StatusOK, gin.H{"trips": response})
}

// CancelTripRequest is the HTTP request body for cancelling a trip.
type CancelTripRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /v1/trips/:id/cancel
func (h *TripHandler) Cancel(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	// Reason is optional; an empty or absent body is accepted.
	var req CancelTripRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.tripService.CancelTrip(c.Request.Context(), service.CancelTripRequest{
		TripID:   c.Param("id"),
		DriverID: principal.UserID,
		Reason:   req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"message":              "trip cancelled",
		"cancelled_bookings":   result.CancelledBookings,
		"notified_count":       result.NotifiedCount,
		"failed_notifications": result.FailedNotifications,
	})
}

// Complete handles POST /v1/trips/:id/complete
func (h *TripHandler) Complete(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	trip, err := h.tripService.Complete(c.Request.Context(), c.Param("id"), principal.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

func toTripResponse(t *domain.Trip) TripResponse {
	return TripResponse{
		ID:             t.ID,
		DriverID:       t.DriverID,
		From:           t.FromLocation,
		To:             t.ToLocation,
		Date:           t.DepartureDate,
		Time:           t.DepartureTime,
		TotalSeats:     t.TotalSeats,
		AvailableSeats: t.AvailableSeats,
		PricePerSeat:   t.PricePerSeat,
		Description:    t.Description,
		Status:         string(t.Status),
	}
}

func intQuery(c *gin.Context, key string, defaultValue int) int {
	v := c.Query(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
