package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"ridepool/internal/domain"
)

// NotificationType represents the type of an outbound notification.
type NotificationType string

const (
	NotificationBookingConfirmed NotificationType = "BOOKING_CONFIRMED"
	NotificationNewBooking       NotificationType = "NEW_BOOKING"
	NotificationTripCancelled    NotificationType = "TRIP_CANCELLED"
	NotificationBookingCancelled NotificationType = "BOOKING_CANCELLED"
	NotificationVerifyAccount    NotificationType = "VERIFY_ACCOUNT"
)

// Notification is one outbound delivery task. Delivery is decoupled from
// the transactions that produce notifications: a task is enqueued only
// after commit, and a failed delivery never unwinds a committed result.
type Notification struct {
	Type      NotificationType
	Recipient string
	Subject   string
	Body      string
	CreatedAt time.Time

	attempts int
}

// Mailer delivers a single notification. Implementations may be SMTP,
// push, or log-only.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes notifications to the process log. Used when no SMTP
// host is configured and in tests.
type LogMailer struct{}

// Send implements Mailer.
func (LogMailer) Send(_ context.Context, to, subject, body string) error {
	log.Printf("[NOTIFICATION] To=%s, Subject=%q, Body=%q", to, subject, body)
	return nil
}

// NotificationDispatcher is the outbound boundary consumed by the booking
// and trip services. Each method enqueues delivery tasks and reports
// whether they were accepted; acceptance is best-effort and callers never
// treat a false return as an operation failure.
type NotificationDispatcher interface {
	BookingConfirmed(trip *domain.Trip, booking *domain.Booking, passenger, driver *domain.User) bool
	TripCancelled(trip *domain.Trip, contact *domain.BookingContact, reason string) bool
	BookingCancelled(trip *domain.Trip, booking *domain.Booking, driver *domain.User) bool
	VerificationRequested(user *domain.User) bool
}

const (
	dispatchMaxAttempts = 3
	dispatchRetryDelay  = 500 * time.Millisecond
)

// QueueDispatcher delivers notifications through a bounded in-process
// queue and a pool of workers, so a slow mail channel cannot inflate a
// caller's latency or stall a cancellation cascade. Delivery is
// at-least-once with capped redelivery.
type QueueDispatcher struct {
	mailer Mailer
	tasks  chan Notification
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
}

// NewQueueDispatcher creates a dispatcher with the given queue capacity
// and worker count and starts the workers.
func NewQueueDispatcher(mailer Mailer, queueSize, workers int) *QueueDispatcher {
	if queueSize < 1 {
		queueSize = 64
	}
	if workers < 1 {
		workers = 1
	}

	d := &QueueDispatcher{
		mailer: mailer,
		tasks:  make(chan Notification, queueSize),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}

	return d
}

func (d *QueueDispatcher) worker() {
	defer d.wg.Done()

	for task := range d.tasks {
		var err error
		for task.attempts = 1; task.attempts <= dispatchMaxAttempts; task.attempts++ {
			err = d.mailer.Send(context.Background(), task.Recipient, task.Subject, task.Body)
			if err == nil {
				break
			}
			if task.attempts < dispatchMaxAttempts {
				time.Sleep(dispatchRetryDelay)
			}
		}

		if err != nil {
			d.failed.Add(1)
			log.Printf("notification delivery failed: type=%s recipient=%s err=%v", task.Type, task.Recipient, err)
			continue
		}

		d.delivered.Add(1)
	}
}

// enqueue offers a task to the queue without blocking. A full or closed
// queue drops the task and reports false.
func (d *QueueDispatcher) enqueue(n Notification) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	n.CreatedAt = time.Now()

	select {
	case d.tasks <- n:
		return true
	default:
		d.failed.Add(1)
		log.Printf("notification queue full, dropping: type=%s recipient=%s", n.Type, n.Recipient)
		return false
	}
}

// BookingConfirmed notifies the passenger and the driver about a new
// booking. Returns true only when both tasks were accepted.
func (d *QueueDispatcher) BookingConfirmed(trip *domain.Trip, booking *domain.Booking, passenger, driver *domain.User) bool {
	toPassenger := d.enqueue(Notification{
		Type:      NotificationBookingConfirmed,
		Recipient: passenger.Email,
		Subject:   "Booking confirmed",
		Body: fmt.Sprintf("Your booking is confirmed: %s to %s on %s %s, %d seat(s), total %.2f. Booking token: %s",
			trip.FromLocation, trip.ToLocation, trip.DepartureDate, trip.DepartureTime,
			booking.SeatsBooked, booking.TotalPrice, booking.Token),
	})

	toDriver := d.enqueue(Notification{
		Type:      NotificationNewBooking,
		Recipient: driver.Email,
		Subject:   "New booking on your trip",
		Body: fmt.Sprintf("%s booked %d seat(s) on your trip %s to %s on %s. Earnings: %.2f",
			passenger.FullName(), booking.SeatsBooked, trip.FromLocation, trip.ToLocation,
			trip.DepartureDate, booking.TotalPrice),
	})

	return toPassenger && toDriver
}

// TripCancelled notifies one affected passenger that the driver cancelled
// the trip.
func (d *QueueDispatcher) TripCancelled(trip *domain.Trip, contact *domain.BookingContact, reason string) bool {
	body := fmt.Sprintf("Hello %s, your trip %s to %s on %s %s was cancelled by the driver.",
		contact.PassengerName, trip.FromLocation, trip.ToLocation, trip.DepartureDate, trip.DepartureTime)
	if reason != "" {
		body += " Reason: " + reason
	}

	return d.enqueue(Notification{
		Type:      NotificationTripCancelled,
		Recipient: contact.PassengerEmail,
		Subject:   "Trip cancelled",
		Body:      body,
	})
}

// BookingCancelled notifies the driver that a passenger released seats.
func (d *QueueDispatcher) BookingCancelled(trip *domain.Trip, booking *domain.Booking, driver *domain.User) bool {
	return d.enqueue(Notification{
		Type:      NotificationBookingCancelled,
		Recipient: driver.Email,
		Subject:   "Booking cancelled",
		Body: fmt.Sprintf("A passenger cancelled %d seat(s) on your trip %s to %s on %s.",
			booking.SeatsBooked, trip.FromLocation, trip.ToLocation, trip.DepartureDate),
	})
}

// VerificationRequested sends the account verification mail.
func (d *QueueDispatcher) VerificationRequested(user *domain.User) bool {
	return d.enqueue(Notification{
		Type:      NotificationVerifyAccount,
		Recipient: user.Email,
		Subject:   "Verify your account",
		Body:      fmt.Sprintf("Hello %s, verify your account with token %s", user.FullName(), user.VerificationToken),
	})
}

// Delivered returns the number of successfully delivered notifications.
func (d *QueueDispatcher) Delivered() int64 { return d.delivered.Load() }

// Failed returns the number of dropped or undeliverable notifications.
func (d *QueueDispatcher) Failed() int64 { return d.failed.Load() }

// Close stops accepting tasks and waits for the workers to drain the
// queue.
func (d *QueueDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.wg.Wait()
}

// Ensure QueueDispatcher implements NotificationDispatcher.
var _ NotificationDispatcher = (*QueueDispatcher)(nil)
