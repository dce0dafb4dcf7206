package app

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"meeting-scheduler/internal/availability"
)

// Store is the persistence the booking flow needs. PGStore is the Postgres
// implementation.
type Store interface {
	GetHost(ctx context.Context, id string) (Host, error)
	UpdateHostTimezone(ctx context.Context, id, timezone string) error

	ListAvailabilityRules(ctx context.Context, userID string) ([]AvailabilityRule, error)
	// InsertAvailabilityRules saves the whole batch or none of it, filling in
	// each rule's ID.
	InsertAvailabilityRules(ctx context.Context, rules []AvailabilityRule) error
	UpdateAvailabilityRule(ctx context.Context, r *AvailabilityRule) error
	DeleteAvailabilityRule(ctx context.Context, userID string, ruleID int) error

	CreateEventType(ctx context.Context, e *EventType) error
	GetEventType(ctx context.Context, id string) (EventType, error)
	ListEventTypes(ctx context.Context, userID string) ([]EventType, error)
	UpdateEventType(ctx context.Context, e *EventType) error
	DeleteEventType(ctx context.Context, userID, id string) error

	// ListActiveBookings returns non-cancelled bookings of the event type
	// overlapping [from, to).
	ListActiveBookings(ctx context.Context, eventTypeID string, from, to time.Time) ([]Booking, error)
	ListBookings(ctx context.Context, userID string, from, to time.Time, filtered bool) ([]Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	CreateBooking(ctx context.Context, b *Booking, check WriteCheck) error
	RescheduleBooking(ctx context.Context, id string, start, end time.Time, check WriteCheck) (Booking, error)
	// SetBookingStatus never moves a cancelled booking; it returns
	// ErrAlreadyCancelled instead, even when the caller read it as active.
	SetBookingStatus(ctx context.Context, id string, status availability.Status) (Booking, error)
	SetCalendarEvent(ctx context.Context, bookingID, eventID, meetLink string) error

	GetCalendarToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveCalendarToken(ctx context.Context, userID string, tok *oauth2.Token) error

	Ping(ctx context.Context) error
}

// WriteSnapshot is what a booking write read inside its transaction.
type WriteSnapshot struct {
	// Overlapping holds non-cancelled bookings of the event type that overlap
	// the proposed interval, minus the booking being moved.
	Overlapping []Booking
	// WeekCount counts non-cancelled bookings of the event type starting in
	// the week of the proposed start, minus the booking being moved.
	WeekCount int
}

// WriteCheck tells the store what to read and lets the caller veto the write
// while the transaction still holds its locks.
type WriteCheck struct {
	WeekFrom  time.Time
	WeekTo    time.Time
	ExcludeID string
	Verify    func(WriteSnapshot) error
}
