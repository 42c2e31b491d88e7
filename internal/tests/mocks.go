package tests

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ridepool/internal/domain"
	"ridepool/internal/redis"
	"ridepool/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository is an in-memory implementation of TripRepository.
type MockTripRepository struct {
	mu    sync.RWMutex
	trips map[string]*domain.Trip

	// Counters for verification
	ReserveSeatsCallCount int32
	ReleaseSeatsCallCount int32

	// Error injection
	CreateError        error
	ReserveSeatsError  error
	ReleaseSeatsError  error
	MarkCancelledError error
}

// NewMockTripRepository creates a new mock trip repository.
func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{
		trips: make(map[string]*domain.Trip),
	}
}

// AddTrip seeds a trip into the mock repository.
func (m *MockTripRepository) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *trip
	m.trips[trip.ID] = &copied
}

// Trip returns a copy of a stored trip for assertions.
func (m *MockTripRepository) Trip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil
	}
	copied := *t
	return &copied
}

func (m *MockTripRepository) snapshot() map[string]*domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*domain.Trip, len(m.trips))
	for id, t := range m.trips {
		copied := *t
		out[id] = &copied
	}
	return out
}

func (m *MockTripRepository) restore(snap map[string]*domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips = snap
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *trip
	m.trips[trip.ID] = &copied
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *MockTripRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	return m.GetByID(ctx, id)
}

func (m *MockTripRepository) Search(ctx context.Context, q repository.TripSearch) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Trip
	for _, t := range m.trips {
		if t.Status != domain.TripStatusActive {
			continue
		}
		if q.From != "" && !strings.EqualFold(t.FromLocation, q.From) {
			continue
		}
		if q.To != "" && !strings.EqualFold(t.ToLocation, q.To) {
			continue
		}
		if t.AvailableSeats < q.MinSeats {
			continue
		}
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MockTripRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Trip
	for _, t := range m.trips {
		if t.DriverID == driverID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockTripRepository) ReserveSeats(ctx context.Context, id string, seatCount int) (*domain.Trip, error) {
	atomic.AddInt32(&m.ReserveSeatsCallCount, 1)
	if m.ReserveSeatsError != nil {
		return nil, m.ReserveSeatsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok || t.AvailableSeats < seatCount {
		return nil, repository.ErrNotFound
	}
	t.AvailableSeats -= seatCount
	if t.AvailableSeats == 0 {
		t.Status = domain.TripStatusFull
	}
	t.UpdatedAt = time.Now()
	copied := *t
	return &copied, nil
}

func (m *MockTripRepository) ReleaseSeats(ctx context.Context, id string, seatCount int) (*domain.Trip, error) {
	atomic.AddInt32(&m.ReleaseSeatsCallCount, 1)
	if m.ReleaseSeatsError != nil {
		return nil, m.ReleaseSeatsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok || t.AvailableSeats+seatCount > t.TotalSeats {
		return nil, repository.ErrNotFound
	}
	t.AvailableSeats += seatCount
	if t.Status == domain.TripStatusFull {
		t.Status = domain.TripStatusActive
	}
	t.UpdatedAt = time.Now()
	copied := *t
	return &copied, nil
}

func (m *MockTripRepository) MarkCancelled(ctx context.Context, id string) error {
	if m.MarkCancelledError != nil {
		return m.MarkCancelledError
	}
	return m.setStatus(id, domain.TripStatusCancelled)
}

func (m *MockTripRepository) MarkCompleted(ctx context.Context, id string) error {
	return m.setStatus(id, domain.TripStatusCompleted)
}

func (m *MockTripRepository) setStatus(id string, status domain.TripStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

// ──────────────────────────────────────────────
// MOCK BOOKING REPOSITORY
// ──────────────────────────────────────────────

// MockBookingRepository is an in-memory implementation of
// BookingRepository. Contacts come from the user repository when one is
// attached via SetUsers.
type MockBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*domain.Booking
	users    *MockUserRepository

	// Counters for verification
	CreateCallCount           int32
	CancelAllForTripCallCount int32

	// Error injection
	CreateError    error
	CancelError    error
	CancelAllError error

	// ReadMisses makes the next N lookups report ErrNotFound even when a
	// matching row exists, simulating a row committed concurrently that
	// the caller's reads have not observed yet.
	ReadMisses int32
}

func (m *MockBookingRepository) consumeReadMiss() bool {
	for {
		n := atomic.LoadInt32(&m.ReadMisses)
		if n <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&m.ReadMisses, n, n-1) {
			return true
		}
	}
}

// NewMockBookingRepository creates a new mock booking repository.
func NewMockBookingRepository() *MockBookingRepository {
	return &MockBookingRepository{
		bookings: make(map[string]*domain.Booking),
	}
}

// SetUsers attaches the user repository used to resolve passenger
// contacts in ListConfirmedByTrip.
func (m *MockBookingRepository) SetUsers(users *MockUserRepository) {
	m.users = users
}

// AddBooking seeds a booking into the mock repository.
func (m *MockBookingRepository) AddBooking(b *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *b
	m.bookings[b.ID] = &copied
}

// Booking returns a copy of a stored booking for assertions.
func (m *MockBookingRepository) Booking(id string) *domain.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil
	}
	copied := *b
	return &copied
}

// ConfirmedCount counts confirmed bookings on a trip for assertions.
func (m *MockBookingRepository) ConfirmedCount(tripID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, b := range m.bookings {
		if b.TripID == tripID && b.Status == domain.BookingStatusConfirmed {
			n++
		}
	}
	return n
}

func (m *MockBookingRepository) snapshot() map[string]*domain.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*domain.Booking, len(m.bookings))
	for id, b := range m.bookings {
		copied := *b
		out[id] = &copied
	}
	return out
}

func (m *MockBookingRepository) restore(snap map[string]*domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = snap
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.Token == booking.Token {
			return repository.ErrDuplicate
		}
		if b.TripID == booking.TripID && b.PassengerID == booking.PassengerID &&
			b.Status == domain.BookingStatusConfirmed {
			return repository.ErrDuplicate
		}
	}
	copied := *booking
	m.bookings[booking.ID] = &copied
	return nil
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *MockBookingRepository) GetByToken(ctx context.Context, token string) (*domain.Booking, error) {
	if m.consumeReadMiss() {
		return nil, repository.ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bookings {
		if b.Token == token {
			copied := *b
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockBookingRepository) GetConfirmedByTripAndPassenger(ctx context.Context, tripID, passengerID string) (*domain.Booking, error) {
	if m.consumeReadMiss() {
		return nil, repository.ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bookings {
		if b.TripID == tripID && b.PassengerID == passengerID &&
			b.Status == domain.BookingStatusConfirmed {
			copied := *b
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockBookingRepository) ListConfirmedByTrip(ctx context.Context, tripID string) ([]*domain.BookingContact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.BookingContact
	for _, b := range m.bookings {
		if b.TripID != tripID || b.Status != domain.BookingStatusConfirmed {
			continue
		}
		copied := *b
		contact := &domain.BookingContact{Booking: copied}
		if m.users != nil {
			if u, err := m.users.GetByID(ctx, b.PassengerID); err == nil {
				contact.PassengerEmail = u.Email
				contact.PassengerName = u.FullName()
			}
		}
		out = append(out, contact)
	}
	return out, nil
}

func (m *MockBookingRepository) ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Booking
	for _, b := range m.bookings {
		if b.PassengerID == passengerID {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockBookingRepository) Cancel(ctx context.Context, id string, by domain.CancelActor, reason string, at time.Time) error {
	if m.CancelError != nil {
		return m.CancelError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != domain.BookingStatusConfirmed {
		return repository.ErrNotFound
	}
	b.Status = domain.BookingStatusCancelled
	b.CancelledBy = by
	b.CancellationReason = reason
	b.CancelledAt = at
	return nil
}

func (m *MockBookingRepository) CancelAllForTrip(ctx context.Context, tripID string, by domain.CancelActor, reason string, at time.Time) (int, error) {
	atomic.AddInt32(&m.CancelAllForTripCallCount, 1)
	if m.CancelAllError != nil {
		return 0, m.CancelAllError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bookings {
		if b.TripID == tripID && b.Status == domain.BookingStatusConfirmed {
			b.Status = domain.BookingStatusCancelled
			b.CancelledBy = by
			b.CancellationReason = reason
			b.CancelledAt = at
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is an in-memory implementation of UserRepository.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User

	// Error injection
	CreateError error
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]*domain.User),
	}
}

// AddUser seeds a user into the mock repository.
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *user
	m.users[user.ID] = &copied
}

// User returns a copy of a stored user for assertions.
func (m *MockUserRepository) User(id string) *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	copied := *u
	return &copied
}

func (m *MockUserRepository) snapshot() map[string]*domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*domain.User, len(m.users))
	for id, u := range m.users {
		copied := *u
		out[id] = &copied
	}
	return out
}

func (m *MockUserRepository) restore(snap map[string]*domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = snap
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) GetByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.VerificationToken == token {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) MarkVerified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Verified = true
	u.VerificationToken = ""
	return nil
}

func (m *MockUserRepository) IncrementRidesOffered(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.TotalRidesOffered++
	return nil
}

func (m *MockUserRepository) IncrementRidesTaken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.TotalRidesTaken++
	return nil
}

// ──────────────────────────────────────────────
// MOCK TX RUNNER
// ──────────────────────────────────────────────

// MockTxRunner runs the unit against the shared in-memory mocks and
// restores their pre-transaction snapshots when fn fails, so a
// mid-transaction error observably undoes every prior write. Transactions
// are serialized by a single mutex, matching the row lock the real store
// takes on the trip.
type MockTxRunner struct {
	trips    *MockTripRepository
	bookings *MockBookingRepository
	users    *MockUserRepository

	txMu sync.Mutex

	// Counters for verification
	CommitCount   int32
	RollbackCount int32

	// Error injection: fail the commit itself after fn succeeded.
	CommitError error
}

// NewMockTxRunner creates a transaction runner over the given mocks.
func NewMockTxRunner(trips *MockTripRepository, bookings *MockBookingRepository, users *MockUserRepository) *MockTxRunner {
	return &MockTxRunner{trips: trips, bookings: bookings, users: users}
}

type mockTx struct {
	runner *MockTxRunner
}

func (t *mockTx) Trips() repository.TripRepository       { return t.runner.trips }
func (t *mockTx) Bookings() repository.BookingRepository { return t.runner.bookings }
func (t *mockTx) Users() repository.UserRepository       { return t.runner.users }

func (r *MockTxRunner) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	tripSnap := r.trips.snapshot()
	bookingSnap := r.bookings.snapshot()
	userSnap := r.users.snapshot()

	err := fn(&mockTx{runner: r})
	if err == nil && r.CommitError != nil {
		err = r.CommitError
	}
	if err != nil {
		r.trips.restore(tripSnap)
		r.bookings.restore(bookingSnap)
		r.users.restore(userSnap)
		atomic.AddInt32(&r.RollbackCount, 1)
		return err
	}

	atomic.AddInt32(&r.CommitCount, 1)
	return nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is an in-memory implementation of the per-trip lock.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time

	// Counters for verification
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]time.Time),
	}
}

func (m *MockLockStore) AcquireTripLock(ctx context.Context, tripID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if expiry, exists := m.locks[tripID]; exists && time.Now().Before(expiry) {
		return false, nil
	}
	m.locks[tripID] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLockStore) AcquireTripLockWait(ctx context.Context, tripID string, ttl, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	for {
		acquired, err := m.AcquireTripLock(ctx, tripID, ttl)
		if err != nil || acquired {
			return acquired, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *MockLockStore) ReleaseTripLock(ctx context.Context, tripID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, tripID)
	return nil
}

// HoldLock takes the lock out of band, simulating a competing holder.
func (m *MockLockStore) HoldLock(tripID string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[tripID] = time.Now().Add(ttl)
}

// ──────────────────────────────────────────────
// MOCK CACHE STORE
// ──────────────────────────────────────────────

// MockCacheStore is an in-memory implementation of the trip cache.
type MockCacheStore struct {
	mu    sync.RWMutex
	trips map[string]*redis.CachedTrip

	// Counters for verification
	GetCallCount        int32
	SetCallCount        int32
	InvalidateCallCount int32
}

// NewMockCacheStore creates a new mock cache store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{
		trips: make(map[string]*redis.CachedTrip),
	}
}

func (m *MockCacheStore) GetTrip(ctx context.Context, tripID string) (*redis.CachedTrip, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[tripID]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (m *MockCacheStore) SetTrip(ctx context.Context, trip *redis.CachedTrip) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *trip
	m.trips[trip.ID] = &copied
	return nil
}

func (m *MockCacheStore) InvalidateTrip(ctx context.Context, tripID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trips, tripID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK NOTIFICATION DISPATCHER
// ──────────────────────────────────────────────

// MockDispatcher records every notification handed to it.
type MockDispatcher struct {
	mu sync.Mutex

	// Recorded recipients per notification kind
	ConfirmedRecipients []string
	CancelledTripEmails []string
	CancelledBookingIDs []string
	VerifyEmails        []string

	// Force enqueue rejection
	RejectAll bool
}

// NewMockDispatcher creates a new mock dispatcher.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

func (m *MockDispatcher) BookingConfirmed(trip *domain.Trip, booking *domain.Booking, passenger, driver *domain.User) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RejectAll {
		return false
	}
	m.ConfirmedRecipients = append(m.ConfirmedRecipients, passenger.Email, driver.Email)
	return true
}

func (m *MockDispatcher) TripCancelled(trip *domain.Trip, contact *domain.BookingContact, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RejectAll {
		return false
	}
	m.CancelledTripEmails = append(m.CancelledTripEmails, contact.PassengerEmail)
	return true
}

func (m *MockDispatcher) BookingCancelled(trip *domain.Trip, booking *domain.Booking, driver *domain.User) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RejectAll {
		return false
	}
	m.CancelledBookingIDs = append(m.CancelledBookingIDs, booking.ID)
	return true
}

func (m *MockDispatcher) VerificationRequested(user *domain.User) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RejectAll {
		return false
	}
	m.VerifyEmails = append(m.VerifyEmails, user.Email)
	return true
}
