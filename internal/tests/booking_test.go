package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ridepool/internal/domain"
	"ridepool/internal/repository"
	"ridepool/internal/service"
)

// ──────────────────────────────────────────────
// 1. BOOKING FIXTURE
// ──────────────────────────────────────────────

type bookingFixture struct {
	trips      *MockTripRepository
	bookings   *MockBookingRepository
	users      *MockUserRepository
	locks      *MockLockStore
	cache      *MockCacheStore
	dispatcher *MockDispatcher
	txRunner   *MockTxRunner

	bookingService *service.BookingService
	tripService    *service.TripService
}

func newBookingFixture() *bookingFixture {
	trips := NewMockTripRepository()
	bookings := NewMockBookingRepository()
	users := NewMockUserRepository()
	bookings.SetUsers(users)

	locks := NewMockLockStore()
	cache := NewMockCacheStore()
	dispatcher := NewMockDispatcher()
	txRunner := NewMockTxRunner(trips, bookings, users)

	return &bookingFixture{
		trips:      trips,
		bookings:   bookings,
		users:      users,
		locks:      locks,
		cache:      cache,
		dispatcher: dispatcher,
		txRunner:   txRunner,
		bookingService: service.NewBookingService(
			txRunner, trips, bookings, users,
			locks, cache, dispatcher,
			2*time.Second, 2*time.Second,
		),
		tripService: service.NewTripService(
			txRunner, trips, bookings, users,
			locks, cache, dispatcher,
			2*time.Second, 2*time.Second,
		),
	}
}

func (f *bookingFixture) addUser(id, email string, userType domain.UserType) *domain.User {
	u := &domain.User{
		ID:        id,
		Email:     email,
		FirstName: "Test",
		LastName:  id,
		UserType:  userType,
		Verified:  true,
	}
	f.users.AddUser(u)
	return u
}

func (f *bookingFixture) addTrip(id, driverID string, seats int, price float64) *domain.Trip {
	t := &domain.Trip{
		ID:             id,
		DriverID:       driverID,
		FromLocation:   "Riga",
		ToLocation:     "Vilnius",
		DepartureDate:  "2026-10-01",
		DepartureTime:  "09:00",
		TotalSeats:     seats,
		AvailableSeats: seats,
		PricePerSeat:   price,
		Status:         domain.TripStatusActive,
	}
	f.trips.AddTrip(t)
	return t
}

// ──────────────────────────────────────────────
// 2. BOOKING HAPPY PATH
// ──────────────────────────────────────────────

func TestBook_ValidRequest_ReservesSeatsAndCreatesBooking(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 12.5)

	result, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID:      "trip-1",
		PassengerID: "pax-1",
		SeatCount:   2,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.BookingID == "" {
		t.Error("expected booking ID to be set")
	}
	if result.Seats != 2 {
		t.Errorf("expected 2 seats, got %d", result.Seats)
	}
	if result.TotalPrice != 25.0 {
		t.Errorf("expected total price 25.0, got %v", result.TotalPrice)
	}
	if result.Replayed {
		t.Error("fresh booking must not be flagged as replayed")
	}

	trip := f.trips.Trip("trip-1")
	if trip.AvailableSeats != 2 {
		t.Errorf("expected 2 seats left, got %d", trip.AvailableSeats)
	}
	if trip.Status != domain.TripStatusActive {
		t.Errorf("expected trip to stay active, got %s", trip.Status)
	}

	booking := f.bookings.Booking(result.BookingID)
	if booking == nil {
		t.Fatal("expected booking to be persisted")
	}
	if booking.Status != domain.BookingStatusConfirmed {
		t.Errorf("expected confirmed status, got %s", booking.Status)
	}
	if booking.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("expected pending payment, got %s", booking.PaymentStatus)
	}

	if f.users.User("pax-1").TotalRidesTaken != 1 {
		t.Error("expected rides-taken counter to be bumped")
	}
	if got := len(f.dispatcher.ConfirmedRecipients); got != 2 {
		t.Errorf("expected passenger and driver notified, got %d recipients", got)
	}
}

func TestBook_LastSeat_FlipsTripToFullInSameUnit(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 3, 10)

	if _, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID:      "trip-1",
		PassengerID: "pax-1",
		SeatCount:   3,
	}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	trip := f.trips.Trip("trip-1")
	if trip.AvailableSeats != 0 {
		t.Errorf("expected 0 seats left, got %d", trip.AvailableSeats)
	}
	if trip.Status != domain.TripStatusFull {
		t.Errorf("expected trip to be full, got %s", trip.Status)
	}
}

// ──────────────────────────────────────────────
// 3. BOOKING REJECTIONS
// ──────────────────────────────────────────────

func TestBook_DriverBookingOwnTrip_Rejected(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addTrip("trip-1", "driver-1", 4, 10)

	_, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID:      "trip-1",
		PassengerID: "driver-1",
		SeatCount:   1,
	})
	if !errors.Is(err, service.ErrSelfBooking) {
		t.Fatalf("expected ErrSelfBooking, got: %v", err)
	}

	if f.trips.Trip("trip-1").AvailableSeats != 4 {
		t.Error("rejected booking must not touch seat inventory")
	}
}

func TestBook_SecondBookingSameTrip_Rejected(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	if _, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 1,
	}); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 1,
	})
	if !errors.Is(err, service.ErrAlreadyBooked) {
		t.Fatalf("expected ErrAlreadyBooked, got: %v", err)
	}

	if f.trips.Trip("trip-1").AvailableSeats != 3 {
		t.Error("only the first booking may decrement seats")
	}
}

func TestBook_NotEnoughSeats_Rejected(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 2, 10)

	_, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 3,
	})
	if !errors.Is(err, service.ErrInsufficientSeats) {
		t.Fatalf("expected ErrInsufficientSeats, got: %v", err)
	}
}

func TestBook_CancelledOrCompletedTrip_NotFound(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.TripStatus{domain.TripStatusCancelled, domain.TripStatusCompleted} {
		f := newBookingFixture()
		f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
		f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
		trip := f.addTrip("trip-1", "driver-1", 4, 10)
		trip.Status = status
		f.trips.AddTrip(trip)

		_, err := f.bookingService.Book(context.Background(), service.BookRequest{
			TripID: "trip-1", PassengerID: "pax-1", SeatCount: 1,
		})
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("status %s: expected ErrNotFound, got: %v", status, err)
		}
	}
}

func TestBook_InvalidInput_Rejected(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()

	testCases := []struct {
		name    string
		req     service.BookRequest
		wantErr error
	}{
		{
			name:    "missing trip id",
			req:     service.BookRequest{PassengerID: "pax-1", SeatCount: 1},
			wantErr: service.ErrInvalidTripID,
		},
		{
			name:    "missing passenger id",
			req:     service.BookRequest{TripID: "trip-1", SeatCount: 1},
			wantErr: service.ErrInvalidPassengerID,
		},
		{
			name:    "zero seats",
			req:     service.BookRequest{TripID: "trip-1", PassengerID: "pax-1"},
			wantErr: service.ErrInvalidSeatCount,
		},
		{
			name:    "negative seats",
			req:     service.BookRequest{TripID: "trip-1", PassengerID: "pax-1", SeatCount: -2},
			wantErr: service.ErrInvalidSeatCount,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.bookingService.Book(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got: %v", tc.wantErr, err)
			}
		})
	}
}

// ──────────────────────────────────────────────
// 4. IDEMPOTENT REPLAY
// ──────────────────────────────────────────────

func TestBook_SameToken_ReplaysWithoutSecondDecrement(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	req := service.BookRequest{
		TripID:      "trip-1",
		PassengerID: "pax-1",
		SeatCount:   2,
		Token:       "retry-token-1",
	}

	first, err := f.bookingService.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("first attempt failed: %v", err)
	}

	second, err := f.bookingService.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if !second.Replayed {
		t.Error("retry with the same token must be flagged as replayed")
	}
	if second.BookingID != first.BookingID {
		t.Errorf("expected same booking id on replay, got %s and %s", first.BookingID, second.BookingID)
	}
	if second.TotalPrice != first.TotalPrice {
		t.Errorf("expected same total price on replay, got %v and %v", first.TotalPrice, second.TotalPrice)
	}

	if got := f.trips.Trip("trip-1").AvailableSeats; got != 2 {
		t.Errorf("seats must be decremented exactly once, got %d left", got)
	}
	if got := f.bookings.ConfirmedCount("trip-1"); got != 1 {
		t.Errorf("expected exactly one booking in the ledger, got %d", got)
	}
	if got := len(f.dispatcher.ConfirmedRecipients); got != 2 {
		t.Errorf("replay must not re-send confirmations, got %d recipients", got)
	}
}

func TestBook_TokenBoundToOriginalCaller(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax1@example.com", domain.UserTypePassenger)
	f.addUser("pax-2", "pax2@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)
	f.addTrip("trip-2", "driver-1", 4, 10)

	first, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID:      "trip-1",
		PassengerID: "pax-1",
		SeatCount:   2,
		Token:       "shared-token",
	})
	if err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	// Another passenger presenting the same token must get a conflict,
	// never the original booking's details.
	result, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID:      "trip-1",
		PassengerID: "pax-2",
		SeatCount:   1,
		Token:       "shared-token",
	})
	if !errors.Is(err, service.ErrTokenInUse) {
		t.Fatalf("expected ErrTokenInUse, got result=%+v err=%v", result, err)
	}
	if result != nil {
		t.Fatalf("conflicting token must not return booking details, got %+v", result)
	}

	// The original holder reusing the token against a different trip is
	// a conflict too, not a replay.
	if _, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID:      "trip-2",
		PassengerID: "pax-1",
		SeatCount:   1,
		Token:       "shared-token",
	}); !errors.Is(err, service.ErrTokenInUse) {
		t.Fatalf("expected ErrTokenInUse for trip mismatch, got %v", err)
	}

	if got := f.trips.Trip("trip-1").AvailableSeats; got != 2 {
		t.Errorf("rejected attempts must not touch seats, got %d left", got)
	}
	if got := f.bookings.ConfirmedCount("trip-1"); got != 1 {
		t.Errorf("expected only the original booking in the ledger, got %d", got)
	}
	if b, err := f.bookings.GetByToken(context.Background(), "shared-token"); err != nil || b.ID != first.BookingID {
		t.Errorf("token must still resolve to the original booking, got %v %v", b, err)
	}
}

func TestBook_ConflictingInsert_ReturnsCommittedBooking(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	trip := f.addTrip("trip-1", "driver-1", 4, 10)

	// A retry with the same token committed moments earlier. Its row is
	// in the ledger and its seats are gone, but the current attempt's
	// reads have not observed it yet, so the insert is what collides.
	prior := &domain.Booking{
		ID:          "booking-prior",
		TripID:      "trip-1",
		PassengerID: "pax-1",
		SeatsBooked: 2,
		TotalPrice:  20,
		Token:       "retry-token-9",
		Status:      domain.BookingStatusConfirmed,
	}
	if err := f.bookings.Create(context.Background(), prior); err != nil {
		t.Fatalf("seeding prior booking: %v", err)
	}
	trip.AvailableSeats = 2
	f.trips.AddTrip(trip)
	f.bookings.ReadMisses = 2

	result, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID:      "trip-1",
		PassengerID: "pax-1",
		SeatCount:   2,
		Token:       "retry-token-9",
	})
	if err != nil {
		t.Fatalf("expected the committed booking back, got: %v", err)
	}
	if !result.Replayed {
		t.Error("recovered result must be flagged as replayed")
	}
	if result.BookingID != "booking-prior" {
		t.Errorf("expected the committed booking id, got %s", result.BookingID)
	}
	if result.TotalPrice != 20 {
		t.Errorf("expected the committed total price, got %v", result.TotalPrice)
	}

	if got := f.trips.Trip("trip-1").AvailableSeats; got != 2 {
		t.Errorf("losing attempt's decrement must be rolled back, got %d left", got)
	}
	if got := f.bookings.ConfirmedCount("trip-1"); got != 1 {
		t.Errorf("expected exactly one booking in the ledger, got %d", got)
	}
}

func TestBook_ConflictingInsert_OtherPassengersToken_Rejected(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax1@example.com", domain.UserTypePassenger)
	f.addUser("pax-2", "pax2@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	if _, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID:      "trip-1",
		PassengerID: "pax-1",
		SeatCount:   2,
		Token:       "retry-token-9",
	}); err != nil {
		t.Fatalf("seeding booking failed: %v", err)
	}
	f.bookings.ReadMisses = 2

	_, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID:      "trip-1",
		PassengerID: "pax-2",
		SeatCount:   1,
		Token:       "retry-token-9",
	})
	if !errors.Is(err, service.ErrTokenInUse) {
		t.Fatalf("expected ErrTokenInUse, got %v", err)
	}
	if got := f.trips.Trip("trip-1").AvailableSeats; got != 2 {
		t.Errorf("rejected attempt must be rolled back, got %d seats left", got)
	}
}

// ──────────────────────────────────────────────
// 5. CONCURRENCY
// ──────────────────────────────────────────────

func TestBook_ConcurrentRequests_NeverOversell(t *testing.T) {
	t.Parallel()

	const (
		totalSeats = 5
		bookers    = 20
	)

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addTrip("trip-1", "driver-1", totalSeats, 10)
	for i := 0; i < bookers; i++ {
		f.addUser(fmt.Sprintf("pax-%d", i), fmt.Sprintf("pax%d@example.com", i), domain.UserTypePassenger)
	}

	var wg sync.WaitGroup
	errs := make([]error, bookers)

	for i := 0; i < bookers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.bookingService.Book(context.Background(), service.BookRequest{
				TripID:      "trip-1",
				PassengerID: fmt.Sprintf("pax-%d", i),
				SeatCount:   1,
			})
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, service.ErrInsufficientSeats):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if succeeded != totalSeats {
		t.Errorf("expected exactly %d successful bookings, got %d", totalSeats, succeeded)
	}
	if rejected != bookers-totalSeats {
		t.Errorf("expected %d rejections, got %d", bookers-totalSeats, rejected)
	}

	trip := f.trips.Trip("trip-1")
	if trip.AvailableSeats != 0 {
		t.Errorf("expected 0 seats left, got %d", trip.AvailableSeats)
	}
	if trip.Status != domain.TripStatusFull {
		t.Errorf("expected trip to be full, got %s", trip.Status)
	}
	if got := f.bookings.ConfirmedCount("trip-1"); got != totalSeats {
		t.Errorf("ledger should hold %d confirmed bookings, got %d", totalSeats, got)
	}
}

func TestBook_LockHeldElsewhere_ReturnsStoreBusy(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	f.locks.HoldLock("trip-1", time.Minute)

	svc := service.NewBookingService(
		f.txRunner, f.trips, f.bookings, f.users,
		f.locks, f.cache, f.dispatcher,
		2*time.Second, 20*time.Millisecond,
	)

	_, err := svc.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 1,
	})
	if !errors.Is(err, service.ErrStoreBusy) {
		t.Fatalf("expected ErrStoreBusy, got: %v", err)
	}
}

// relockDispatcher tries to take the trip lock from inside each dispatch
// callback. It only succeeds when the service has already let go of the
// lock, which is how every dispatch is expected to run.
type relockDispatcher struct {
	locks  *MockLockStore
	tripID string

	mu       sync.Mutex
	lockFree []bool
}

func (d *relockDispatcher) observe() bool {
	ok, _ := d.locks.AcquireTripLock(context.Background(), d.tripID, time.Second)
	if ok {
		_ = d.locks.ReleaseTripLock(context.Background(), d.tripID)
	}
	d.mu.Lock()
	d.lockFree = append(d.lockFree, ok)
	d.mu.Unlock()
	return true
}

func (d *relockDispatcher) observations() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.lockFree...)
}

func (d *relockDispatcher) BookingConfirmed(trip *domain.Trip, booking *domain.Booking, passenger, driver *domain.User) bool {
	return d.observe()
}

func (d *relockDispatcher) TripCancelled(trip *domain.Trip, contact *domain.BookingContact, reason string) bool {
	return d.observe()
}

func (d *relockDispatcher) BookingCancelled(trip *domain.Trip, booking *domain.Booking, driver *domain.User) bool {
	return d.observe()
}

func (d *relockDispatcher) VerificationRequested(user *domain.User) bool {
	return d.observe()
}

func TestBook_LockReleasedBeforeNotifications(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	dispatcher := &relockDispatcher{locks: f.locks, tripID: "trip-1"}
	svc := service.NewBookingService(
		f.txRunner, f.trips, f.bookings, f.users,
		f.locks, f.cache, dispatcher,
		2*time.Second, 2*time.Second,
	)

	if _, err := svc.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 1,
	}); err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	got := dispatcher.observations()
	if len(got) == 0 {
		t.Fatal("expected the dispatcher to run")
	}
	for i, free := range got {
		if !free {
			t.Errorf("dispatch %d ran while the trip lock was still held", i)
		}
	}
}

func TestCancelTrip_LockReleasedBeforeDispatch(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax1@example.com", domain.UserTypePassenger)
	f.addUser("pax-2", "pax2@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	for _, pax := range []string{"pax-1", "pax-2"} {
		if _, err := f.bookingService.Book(context.Background(), service.BookRequest{
			TripID: "trip-1", PassengerID: pax, SeatCount: 1,
		}); err != nil {
			t.Fatalf("seeding booking for %s: %v", pax, err)
		}
	}

	dispatcher := &relockDispatcher{locks: f.locks, tripID: "trip-1"}
	svc := service.NewTripService(
		f.txRunner, f.trips, f.bookings, f.users,
		f.locks, f.cache, dispatcher,
		2*time.Second, 2*time.Second,
	)

	result, err := svc.CancelTrip(context.Background(), service.CancelTripRequest{
		TripID: "trip-1", DriverID: "driver-1", Reason: "weather",
	})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.NotifiedCount != 2 {
		t.Fatalf("expected 2 notifications, got %d", result.NotifiedCount)
	}

	for i, free := range dispatcher.observations() {
		if !free {
			t.Errorf("dispatch %d ran while the trip lock was still held", i)
		}
	}
}

func TestBook_CallerGoneAfterCommit_NotificationsStillSent(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	// The request context dies the moment the unit commits, as it does
	// when the client disconnects right after the write lands.
	ctx, cancel := context.WithCancel(context.Background())
	runner := &droppedCallerTxRunner{inner: f.txRunner, cancel: cancel}

	svc := service.NewBookingService(
		runner, f.trips, f.bookings, f.users,
		f.locks, f.cache, f.dispatcher,
		2*time.Second, 2*time.Second,
	)

	result, err := svc.Book(ctx, service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 1,
	})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if result.BookingID == "" {
		t.Fatal("expected a committed booking")
	}

	if got := len(f.dispatcher.ConfirmedRecipients); got != 2 {
		t.Errorf("committed booking must notify both parties, got %d recipients", got)
	}
}

// droppedCallerTxRunner cancels the request context as soon as the unit
// commits.
type droppedCallerTxRunner struct {
	inner  *MockTxRunner
	cancel context.CancelFunc
}

func (r *droppedCallerTxRunner) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	err := r.inner.InTx(ctx, fn)
	if err == nil {
		r.cancel()
	}
	return err
}

// ──────────────────────────────────────────────
// 6. ATOMICITY
// ──────────────────────────────────────────────

func TestBook_LedgerWriteFails_SeatReservationRolledBack(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	injected := errors.New("ledger write refused")
	f.bookings.CreateError = injected

	_, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 2,
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got: %v", err)
	}

	if got := f.trips.Trip("trip-1").AvailableSeats; got != 4 {
		t.Errorf("seat reservation must be undone, got %d seats left", got)
	}
	if got := f.bookings.ConfirmedCount("trip-1"); got != 0 {
		t.Errorf("no booking may survive the rollback, got %d", got)
	}
	if f.users.User("pax-1").TotalRidesTaken != 0 {
		t.Error("counters must be undone with the rest of the unit")
	}
	if len(f.dispatcher.ConfirmedRecipients) != 0 {
		t.Error("no notification may be sent for a rolled-back booking")
	}
}

func TestBook_CommitFails_NothingPersisted(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	f.txRunner.CommitError = errors.New("connection lost at commit")

	_, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 1,
	})
	if err == nil {
		t.Fatal("expected commit failure to surface")
	}

	if got := f.trips.Trip("trip-1").AvailableSeats; got != 4 {
		t.Errorf("expected inventory untouched, got %d seats left", got)
	}
	if got := f.bookings.ConfirmedCount("trip-1"); got != 0 {
		t.Errorf("expected empty ledger, got %d bookings", got)
	}
}

// ──────────────────────────────────────────────
// 7. PASSENGER CANCELLATION
// ──────────────────────────────────────────────

func TestCancelBooking_ReleasesSeatsAndFlipsFullBackToActive(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 2, 10)

	result, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 2,
	})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if f.trips.Trip("trip-1").Status != domain.TripStatusFull {
		t.Fatal("expected trip to be full before cancellation")
	}

	cancelled, err := f.bookingService.CancelBooking(context.Background(), service.CancelBookingRequest{
		BookingID:   result.BookingID,
		PassengerID: "pax-1",
		Reason:      "change of plans",
	})
	if err != nil {
		t.Fatalf("cancellation failed: %v", err)
	}

	if cancelled.Status != domain.BookingStatusCancelled {
		t.Errorf("expected cancelled status, got %s", cancelled.Status)
	}
	if cancelled.CancelledBy != domain.CancelledByPassenger {
		t.Errorf("expected passenger as cancel actor, got %s", cancelled.CancelledBy)
	}

	trip := f.trips.Trip("trip-1")
	if trip.AvailableSeats != 2 {
		t.Errorf("expected seats released, got %d", trip.AvailableSeats)
	}
	if trip.Status != domain.TripStatusActive {
		t.Errorf("expected trip active again, got %s", trip.Status)
	}
}

func TestCancelBooking_NotOwner_Rejected(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addUser("pax-2", "pax2@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	result, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 1,
	})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	_, err = f.bookingService.CancelBooking(context.Background(), service.CancelBookingRequest{
		BookingID:   result.BookingID,
		PassengerID: "pax-2",
	})
	if !errors.Is(err, service.ErrNotBookingOwner) {
		t.Fatalf("expected ErrNotBookingOwner, got: %v", err)
	}

	if f.bookings.Booking(result.BookingID).Status != domain.BookingStatusConfirmed {
		t.Error("booking must stay confirmed after a rejected cancellation")
	}
}

func TestCancelBooking_AlreadyCancelled_Rejected(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	result, err := f.bookingService.Book(context.Background(), service.BookRequest{
		TripID: "trip-1", PassengerID: "pax-1", SeatCount: 1,
	})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	req := service.CancelBookingRequest{BookingID: result.BookingID, PassengerID: "pax-1"}
	if _, err := f.bookingService.CancelBooking(context.Background(), req); err != nil {
		t.Fatalf("first cancellation failed: %v", err)
	}

	_, err = f.bookingService.CancelBooking(context.Background(), req)
	if !errors.Is(err, service.ErrBookingAlreadyCancelled) {
		t.Fatalf("expected ErrBookingAlreadyCancelled, got: %v", err)
	}

	if got := f.trips.Trip("trip-1").AvailableSeats; got != 4 {
		t.Errorf("seats must be released exactly once, got %d", got)
	}
}

func TestCancelBooking_OnCancelledTrip_DoesNotReleaseSeats(t *testing.T) {
	t.Parallel()

	f := newBookingFixture()
	f.addUser("driver-1", "driver@example.com", domain.UserTypeDriver)
	f.addUser("pax-1", "pax@example.com", domain.UserTypePassenger)
	f.addTrip("trip-1", "driver-1", 4, 10)

	// Booking created directly in the ledger against a trip that is
	// later cancelled out of band, leaving the booking confirmed.
	f.bookings.AddBooking(&domain.Booking{
		ID:          "booking-1",
		TripID:      "trip-1",
		PassengerID: "pax-1",
		SeatsBooked: 1,
		Status:      domain.BookingStatusConfirmed,
	})
	trip := f.trips.Trip("trip-1")
	trip.Status = domain.TripStatusCancelled
	f.trips.AddTrip(trip)

	if _, err := f.bookingService.CancelBooking(context.Background(), service.CancelBookingRequest{
		BookingID: "booking-1", PassengerID: "pax-1",
	}); err != nil {
		t.Fatalf("cancellation failed: %v", err)
	}

	if got := f.trips.Trip("trip-1").AvailableSeats; got != 4 {
		t.Errorf("cancelled trip inventory must not change, got %d", got)
	}
	if f.trips.Trip("trip-1").Status != domain.TripStatusCancelled {
		t.Error("trip must stay cancelled")
	}
}
