package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ridepool/internal/domain"
	"ridepool/internal/redis"
	"ridepool/internal/repository"
)

// TripService handles the trip lifecycle: publishing, searching, the
// driver-initiated cancellation cascade and the departure-driven
// completion transition.
type TripService struct {
	txRunner    repository.TxRunner
	tripRepo    repository.TripRepository
	bookingRepo repository.BookingRepository
	userRepo    repository.UserRepository
	lockStore   redis.LockStoreInterface
	cacheStore  redis.CacheStoreInterface
	dispatcher  NotificationDispatcher
	lockTTL     time.Duration
	lockWait    time.Duration
}

// NewTripService creates a new TripService. cacheStore and dispatcher may
// be nil.
func NewTripService(
	txRunner repository.TxRunner,
	tripRepo repository.TripRepository,
	bookingRepo repository.BookingRepository,
	userRepo repository.UserRepository,
	lockStore redis.LockStoreInterface,
	cacheStore redis.CacheStoreInterface,
	dispatcher NotificationDispatcher,
	lockTTL, lockWait time.Duration,
) *TripService {
	return &TripService{
		txRunner:    txRunner,
		tripRepo:    tripRepo,
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
		lockStore:   lockStore,
		cacheStore:  cacheStore,
		dispatcher:  dispatcher,
		lockTTL:     lockTTL,
		lockWait:    lockWait,
	}
}

// OfferTripRequest contains the parameters for publishing a trip.
type OfferTripRequest struct {
	DriverID      string
	FromLocation  string
	ToLocation    string
	DepartureDate string
	DepartureTime string
	TotalSeats    int
	PricePerSeat  float64
	Description   string
}

// Offer publishes a new trip. The trip starts active with every seat
// available, and the driver's offered counter is bumped in the same unit.
func (s *TripService) Offer(ctx context.Context, req OfferTripRequest) (*domain.Trip, error) {
	if req.DriverID == "" || req.FromLocation == "" || req.ToLocation == "" ||
		req.DepartureDate == "" || req.DepartureTime == "" {
		return nil, ErrMissingFields
	}
	if req.TotalSeats < 1 {
		return nil, ErrInvalidSeatCount
	}
	if req.PricePerSeat < 0 {
		return nil, ErrMissingFields
	}

	driver, err := s.userRepo.GetByID(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}
	if !driver.UserType.CanDrive() {
		return nil, ErrNotADriver
	}

	now := time.Now()
	trip := &domain.Trip{
		ID:             uuid.New().String(),
		DriverID:       req.DriverID,
		FromLocation:   req.FromLocation,
		ToLocation:     req.ToLocation,
		DepartureDate:  req.DepartureDate,
		DepartureTime:  req.DepartureTime,
		TotalSeats:     req.TotalSeats,
		AvailableSeats: req.TotalSeats,
		PricePerSeat:   req.PricePerSeat,
		Description:    req.Description,
		Status:         domain.TripStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.txRunner.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Trips().Create(ctx, trip); err != nil {
			return err
		}
		return tx.Users().IncrementRidesOffered(ctx, req.DriverID)
	})
	if err != nil {
		return nil, err
	}

	return trip, nil
}

// Search retrieves active trips matching the filters. An empty date floor
// defaults to today.
func (s *TripService) Search(ctx context.Context, q repository.TripSearch) ([]*domain.Trip, error) {
	if q.DateFrom == "" {
		q.DateFrom = time.Now().Format("2006-01-02")
	}
	if q.MinSeats < 1 {
		q.MinSeats = 1
	}

	return s.tripRepo.Search(ctx, q)
}

// Get retrieves a trip by ID, serving from cache when possible.
func (s *TripService) Get(ctx context.Context, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	if s.cacheStore != nil {
		if cached, err := s.cacheStore.GetTrip(ctx, tripID); err == nil && cached != nil {
			return cachedToTrip(cached), nil
		}
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if s.cacheStore != nil {
		_ = s.cacheStore.SetTrip(ctx, tripToCached(trip))
	}

	return trip, nil
}

// ListByDriver retrieves the caller's published trips.
func (s *TripService) ListByDriver(ctx context.Context, driverID string) ([]*domain.Trip, error) {
	if driverID == "" {
		return nil, ErrInvalidPassengerID
	}
	return s.tripRepo.ListByDriver(ctx, driverID)
}

// CancelTripRequest contains the parameters for the cancellation cascade.
type CancelTripRequest struct {
	TripID   string
	DriverID string
	Reason   string
}

// CancelTripResult reports the outcome of a cancellation cascade.
type CancelTripResult struct {
	// CancelledBookings is how many confirmed bookings the cascade
	// flipped to cancelled.
	CancelledBookings int
	// NotifiedCount is how many passengers a cancellation notice was
	// dispatched for.
	NotifiedCount int
	// FailedNotifications counts dispatch attempts the outbound queue
	// rejected; these are never retried inside this operation.
	FailedNotifications int
}

// CancelTrip cancels a trip and every confirmed booking on it as one
// atomic unit: the trip can never end up cancelled while any booking
// remains confirmed. Passengers are notified only after commit.
func (s *TripService) CancelTrip(ctx context.Context, req CancelTripRequest) (*CancelTripResult, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}

	acquired, err := s.lockStore.AcquireTripLockWait(ctx, req.TripID, s.lockTTL, s.lockWait)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrStoreBusy
	}
	release := releaseOnce(ctx, s.lockStore, req.TripID)
	defer release()

	var trip *domain.Trip
	var affected []*domain.BookingContact
	var flipped int

	err = s.txRunner.InTx(ctx, func(tx repository.Tx) error {
		t, err := tx.Trips().GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return err
		}

		if t.DriverID != req.DriverID {
			return ErrNotTripOwner
		}

		if t.Status == domain.TripStatusCancelled {
			return ErrTripAlreadyCancelled
		}
		if t.Status == domain.TripStatusCompleted {
			return ErrTripCompleted
		}

		// Contacts are collected inside the unit so the notification
		// list matches exactly the bookings the cascade cancels.
		affected, err = tx.Bookings().ListConfirmedByTrip(ctx, req.TripID)
		if err != nil {
			return err
		}

		if err := tx.Trips().MarkCancelled(ctx, req.TripID); err != nil {
			return err
		}

		flipped, err = tx.Bookings().CancelAllForTrip(ctx, req.TripID, domain.CancelledByDriver, req.Reason, time.Now())
		if err != nil {
			return err
		}

		trip = t
		return nil
	})
	release()
	if err != nil {
		return nil, err
	}

	s.invalidateTripCache(ctx, req.TripID)

	result := &CancelTripResult{CancelledBookings: flipped}
	for _, contact := range affected {
		if s.dispatcher != nil && s.dispatcher.TripCancelled(trip, contact, req.Reason) {
			result.NotifiedCount++
		} else {
			result.FailedNotifications++
		}
	}

	return result, nil
}

// Complete marks a trip as completed once it has departed. Owner only;
// bookings stay confirmed and seats stay allocated.
func (s *TripService) Complete(ctx context.Context, tripID, driverID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	acquired, err := s.lockStore.AcquireTripLockWait(ctx, tripID, s.lockTTL, s.lockWait)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrStoreBusy
	}
	release := releaseOnce(ctx, s.lockStore, tripID)
	defer release()

	var trip *domain.Trip

	err = s.txRunner.InTx(ctx, func(tx repository.Tx) error {
		t, err := tx.Trips().GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}

		if t.DriverID != driverID {
			return ErrNotTripOwner
		}

		if t.Status == domain.TripStatusCancelled {
			return ErrTripAlreadyCancelled
		}
		if t.Status == domain.TripStatusCompleted {
			return ErrTripCompleted
		}

		if err := tx.Trips().MarkCompleted(ctx, tripID); err != nil {
			return err
		}

		t.Status = domain.TripStatusCompleted
		trip = t
		return nil
	})
	release()
	if err != nil {
		return nil, err
	}

	s.invalidateTripCache(ctx, tripID)

	return trip, nil
}

func (s *TripService) invalidateTripCache(ctx context.Context, tripID string) {
	if s.cacheStore == nil {
		return
	}
	_ = s.cacheStore.InvalidateTrip(ctx, tripID)
}

func cachedToTrip(c *redis.CachedTrip) *domain.Trip {
	return &domain.Trip{
		ID:             c.ID,
		DriverID:       c.DriverID,
		FromLocation:   c.FromLocation,
		ToLocation:     c.ToLocation,
		DepartureDate:  c.DepartureDate,
		DepartureTime:  c.DepartureTime,
		TotalSeats:     c.TotalSeats,
		AvailableSeats: c.AvailableSeats,
		PricePerSeat:   c.PricePerSeat,
		Status:         domain.TripStatus(c.Status),
	}
}

func tripToCached(t *domain.Trip) *redis.CachedTrip {
	return &redis.CachedTrip{
		ID:             t.ID,
		DriverID:       t.DriverID,
		FromLocation:   t.FromLocation,
		ToLocation:     t.ToLocation,
		DepartureDate:  t.DepartureDate,
		DepartureTime:  t.DepartureTime,
		TotalSeats:     t.TotalSeats,
		AvailableSeats: t.AvailableSeats,
		PricePerSeat:   t.PricePerSeat,
		Status:         string(t.Status),
	}
}
