package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"ridepool/internal/domain"
	"ridepool/internal/redis"
	"ridepool/internal/repository"
)

// BookingService orchestrates the atomic reserve-seats-plus-create-booking
// operation and the passenger-initiated single-booking cancellation.
//
// Every mutation runs inside one TxRunner unit while holding the trip's
// distributed lock, so concurrent requests against the same trip
// serialize and commit in some serial order; requests for different trips
// do not block each other.
type BookingService struct {
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

// NewBookingService creates a new BookingService. cacheStore and
// dispatcher may be nil.
func NewBookingService(
	txRunner repository.TxRunner,
	tripRepo repository.TripRepository,
	bookingRepo repository.BookingRepository,
	userRepo repository.UserRepository,
	lockStore redis.LockStoreInterface,
	cacheStore redis.CacheStoreInterface,
	dispatcher NotificationDispatcher,
	lockTTL, lockWait time.Duration,
) *BookingService {
	return &BookingService{
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

// BookRequest contains the parameters for booking seats on a trip.
type BookRequest struct {
	TripID      string
	PassengerID string
	SeatCount   int

	// Token deduplicates retries of the same logical booking. Empty
	// means the service issues one.
	Token string
}

// BookResult contains the outcome of a successful or replayed booking.
type BookResult struct {
	BookingID  string
	Token      string
	Seats      int
	TotalPrice float64

	// Replayed is true when the token matched an existing booking and
	// no new state was written.
	Replayed bool
}

// errLedgerConflict aborts the unit when the ledger insert hits a
// uniqueness constraint. The transaction is unusable after the violation,
// so recovery happens outside, on a fresh read.
var errLedgerConflict = errors.New("booking ledger conflict")

// Book reserves seats and creates the booking as one atomic unit.
//
// Precondition order, each a distinct failure: trip exists and is
// bookable (ErrNotFound), passenger is not the driver (ErrSelfBooking),
// no confirmed booking for the pair yet (ErrAlreadyBooked), seats cover
// the request (ErrInsufficientSeats). A token that already has a booking
// short-circuits before any write and returns the prior result, but only
// to the passenger and trip the token was issued for.
func (s *BookingService) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if req.PassengerID == "" {
		return nil, ErrInvalidPassengerID
	}
	if req.SeatCount < 1 {
		return nil, ErrInvalidSeatCount
	}

	token := req.Token
	if token == "" {
		token = uuid.New().String()
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

	var result *BookResult
	var trip *domain.Trip

	err = s.txRunner.InTx(ctx, func(tx repository.Tx) error {
		// Token replay must be detected before the seat decrement, or
		// two retries of the same intent could both pass the
		// availability check. A token minted for another passenger or
		// another trip is a conflict, never a replay.
		if prior, err := tx.Bookings().GetByToken(ctx, token); err == nil {
			if prior.PassengerID != req.PassengerID || prior.TripID != req.TripID {
				return ErrTokenInUse
			}
			result = &BookResult{
				BookingID:  prior.ID,
				Token:      prior.Token,
				Seats:      prior.SeatsBooked,
				TotalPrice: prior.TotalPrice,
				Replayed:   true,
			}
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		t, err := tx.Trips().GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return err
		}

		// Cancelled and completed trips are not bookable targets;
		// report them exactly like a missing trip.
		if t.Status.Terminal() {
			return repository.ErrNotFound
		}

		if t.DriverID == req.PassengerID {
			return ErrSelfBooking
		}

		if _, err := tx.Bookings().GetConfirmedByTripAndPassenger(ctx, req.TripID, req.PassengerID); err == nil {
			return ErrAlreadyBooked
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if t.Status != domain.TripStatusActive || t.AvailableSeats < req.SeatCount {
			return ErrInsufficientSeats
		}

		updated, err := tx.Trips().ReserveSeats(ctx, req.TripID, req.SeatCount)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInsufficientSeats
			}
			return err
		}
		trip = updated

		booking := &domain.Booking{
			ID:            uuid.New().String(),
			TripID:        req.TripID,
			PassengerID:   req.PassengerID,
			SeatsBooked:   req.SeatCount,
			TotalPrice:    float64(req.SeatCount) * t.PricePerSeat,
			Token:         token,
			Status:        domain.BookingStatusConfirmed,
			PaymentStatus: domain.PaymentStatusPending,
			CreatedAt:     time.Now(),
		}

		if err := tx.Bookings().Create(ctx, booking); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errLedgerConflict
			}
			return err
		}

		if err := tx.Users().IncrementRidesTaken(ctx, req.PassengerID); err != nil {
			return err
		}

		result = &BookResult{
			BookingID:  booking.ID,
			Token:      booking.Token,
			Seats:      booking.SeatsBooked,
			TotalPrice: booking.TotalPrice,
		}
		return nil
	})
	release()
	if errors.Is(err, errLedgerConflict) {
		// A same-token retry committed between the replay check and the
		// insert, which is reachable once the trip lock expires
		// mid-operation. The committed row is the answer when it belongs
		// to this caller; anything else is a genuine duplicate.
		prior, lookupErr := s.bookingRepo.GetByToken(ctx, token)
		if lookupErr == nil {
			if prior.PassengerID != req.PassengerID || prior.TripID != req.TripID {
				return nil, ErrTokenInUse
			}
			return &BookResult{
				BookingID:  prior.ID,
				Token:      prior.Token,
				Seats:      prior.SeatsBooked,
				TotalPrice: prior.TotalPrice,
				Replayed:   true,
			}, nil
		}
		return nil, ErrAlreadyBooked
	}
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.invalidateTripCache(ctx, req.TripID)
		s.notifyBooked(trip, result, req.PassengerID)
	}

	return result, nil
}

// releaseOnce returns an idempotent release for the trip lock. The
// returned func runs at most once, so the deferred safety net cannot
// delete a lock some later caller has since acquired. The lock covers
// the transaction only, never the notification side effects.
func releaseOnce(ctx context.Context, locks redis.LockStoreInterface, tripID string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		_ = locks.ReleaseTripLock(ctx, tripID)
	}
}

// CancelBookingRequest contains the parameters for cancelling a single
// booking.
type CancelBookingRequest struct {
	BookingID   string
	PassengerID string
	Reason      string
}

// CancelBooking cancels the caller's own confirmed booking and releases
// its seats back to the trip in the same atomic unit. Freeing seats on a
// full trip flips it back to active. Seats are not released when the
// trip itself is already cancelled or completed.
func (s *BookingService) CancelBooking(ctx context.Context, req CancelBookingRequest) (*domain.Booking, error) {
	if req.BookingID == "" {
		return nil, ErrInvalidBookingID
	}
	if req.PassengerID == "" {
		return nil, ErrInvalidPassengerID
	}

	// The trip id is needed for the lock before the transaction starts;
	// ownership and status are re-verified under the lock.
	peek, err := s.bookingRepo.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if peek.PassengerID != req.PassengerID {
		return nil, ErrNotBookingOwner
	}

	acquired, err := s.lockStore.AcquireTripLockWait(ctx, peek.TripID, s.lockTTL, s.lockWait)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrStoreBusy
	}
	release := releaseOnce(ctx, s.lockStore, peek.TripID)
	defer release()

	var cancelled *domain.Booking
	var trip *domain.Trip

	err = s.txRunner.InTx(ctx, func(tx repository.Tx) error {
		booking, err := tx.Bookings().GetByID(ctx, req.BookingID)
		if err != nil {
			return err
		}

		if booking.PassengerID != req.PassengerID {
			return ErrNotBookingOwner
		}

		if booking.Status == domain.BookingStatusCancelled {
			return ErrBookingAlreadyCancelled
		}

		t, err := tx.Trips().GetByIDForUpdate(ctx, booking.TripID)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Bookings().Cancel(ctx, booking.ID, domain.CancelledByPassenger, req.Reason, now); err != nil {
			return err
		}

		if !t.Status.Terminal() {
			t, err = tx.Trips().ReleaseSeats(ctx, t.ID, booking.SeatsBooked)
			if err != nil {
				return err
			}
		}
		trip = t

		booking.Status = domain.BookingStatusCancelled
		booking.CancelledBy = domain.CancelledByPassenger
		booking.CancellationReason = req.Reason
		booking.CancelledAt = now
		cancelled = booking
		return nil
	})
	release()
	if err != nil {
		return nil, err
	}

	s.invalidateTripCache(ctx, peek.TripID)
	s.notifyBookingCancelled(trip, cancelled)

	return cancelled, nil
}

// ListByPassenger returns the caller's bookings.
func (s *BookingService) ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Booking, error) {
	if passengerID == "" {
		return nil, ErrInvalidPassengerID
	}
	return s.bookingRepo.ListByPassenger(ctx, passengerID)
}

func (s *BookingService) invalidateTripCache(ctx context.Context, tripID string) {
	if s.cacheStore == nil {
		return
	}
	_ = s.cacheStore.InvalidateTrip(ctx, tripID)
}

// notifyBooked enqueues the confirmation mails for both parties. Failures
// are logged, never surfaced: the booking is already committed. The
// lookups run on a fresh context so a caller disconnecting right after
// commit cannot suppress the mails.
func (s *BookingService) notifyBooked(trip *domain.Trip, result *BookResult, passengerID string) {
	if s.dispatcher == nil || trip == nil {
		return
	}

	ctx := context.Background()
	passenger, err := s.userRepo.GetByID(ctx, passengerID)
	if err != nil {
		log.Printf("booking %s: passenger lookup for notification failed: %v", result.BookingID, err)
		return
	}
	driver, err := s.userRepo.GetByID(ctx, trip.DriverID)
	if err != nil {
		log.Printf("booking %s: driver lookup for notification failed: %v", result.BookingID, err)
		return
	}

	booking := &domain.Booking{
		ID:          result.BookingID,
		TripID:      trip.ID,
		SeatsBooked: result.Seats,
		TotalPrice:  result.TotalPrice,
		Token:       result.Token,
	}
	s.dispatcher.BookingConfirmed(trip, booking, passenger, driver)
}

func (s *BookingService) notifyBookingCancelled(trip *domain.Trip, booking *domain.Booking) {
	if s.dispatcher == nil || trip == nil {
		return
	}

	driver, err := s.userRepo.GetByID(context.Background(), trip.DriverID)
	if err != nil {
		log.Printf("booking %s: driver lookup for notification failed: %v", booking.ID, err)
		return
	}

	s.dispatcher.BookingCancelled(trip, booking, driver)
}
