package app

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"meeting-scheduler/internal/availability"
)

// pgStore connects to DATABASE_URL and seeds one throwaway host with an event
// type. The host row cascades everything else on cleanup.
func pgStore(t *testing.T) (*PGStore, EventType) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := OpenPool(ctx, url)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	store := NewPGStore(pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hostID := "test-" + uuid.NewString()
	if _, err := pool.Exec(ctx,
		`INSERT INTO users (id, username, email, timezone) VALUES ($1, $1, '', 'Europe/Stockholm')`, hostID); err != nil {
		t.Fatalf("insert host: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id=$1`, hostID)
	})

	et := EventType{UserID: hostID, Slug: "intro", Title: "Intro", DurationMinutes: 30, MaximumNoticeDays: 60}
	if err := store.CreateEventType(ctx, &et); err != nil {
		t.Fatalf("create event type: %v", err)
	}
	return store, et
}

func pgBooking(et EventType, start time.Time) *Booking {
	return &Booking{
		EventTypeID: et.ID, UserID: et.UserID,
		GuestName: "Guest", GuestEmail: "guest@example.com",
		StartAtUTC: start, EndAtUTC: start.Add(30 * time.Minute),
		Status: availability.StatusConfirmed,
	}
}

func TestPGStoreExclusionConstraint(t *testing.T) {
	store, et := pgStore(t)
	ctx := context.Background()
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

	first := pgBooking(et, start)
	if err := store.CreateBooking(ctx, first, WriteCheck{}); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	overlap := pgBooking(et, start.Add(15*time.Minute))
	if err := store.CreateBooking(ctx, overlap, WriteCheck{}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("overlapping booking err = %v want ErrSlotUnavailable", err)
	}

	touching := pgBooking(et, start.Add(30*time.Minute))
	if err := store.CreateBooking(ctx, touching, WriteCheck{}); err != nil {
		t.Fatalf("touching booking: %v", err)
	}

	if _, err := store.RescheduleBooking(ctx, touching.ID, start, start.Add(30*time.Minute), WriteCheck{}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("reschedule onto first err = %v want ErrSlotUnavailable", err)
	}

	if _, err := store.SetBookingStatus(ctx, first.ID, availability.StatusCancelled); err != nil {
		t.Fatalf("cancel first: %v", err)
	}
	if _, err := store.SetBookingStatus(ctx, first.ID, availability.StatusCancelled); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("second cancel err = %v want ErrAlreadyCancelled", err)
	}
	if _, err := store.SetBookingStatus(ctx, uuid.NewString(), availability.StatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cancel unknown err = %v want ErrNotFound", err)
	}
	again := pgBooking(et, start)
	if err := store.CreateBooking(ctx, again, WriteCheck{}); err != nil {
		t.Fatalf("rebook cancelled slot: %v", err)
	}
}

func TestPGStoreWriteSnapshot(t *testing.T) {
	store, et := pgStore(t)
	ctx := context.Background()
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	week := WriteCheck{WeekFrom: start.Add(-24 * time.Hour), WeekTo: start.Add(6 * 24 * time.Hour)}

	existing := pgBooking(et, start)
	if err := store.CreateBooking(ctx, existing, week); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	var seen WriteSnapshot
	check := week
	check.Verify = func(s WriteSnapshot) error {
		seen = s
		return ErrSlotUnavailable
	}
	err := store.CreateBooking(ctx, pgBooking(et, start.Add(10*time.Minute)), check)
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("err = %v want the Verify error", err)
	}
	if len(seen.Overlapping) != 1 || seen.Overlapping[0].ID != existing.ID {
		t.Fatalf("overlapping = %+v want [%s]", seen.Overlapping, existing.ID)
	}
	if seen.WeekCount != 1 {
		t.Fatalf("week count = %d want 1", seen.WeekCount)
	}

	// Moving a booking does not see itself.
	check.Verify = func(s WriteSnapshot) error {
		seen = s
		return nil
	}
	moved, err := store.RescheduleBooking(ctx, existing.ID, start.Add(time.Hour), start.Add(90*time.Minute), check)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if len(seen.Overlapping) != 0 || seen.WeekCount != 0 {
		t.Fatalf("snapshot while moving = %+v want empty", seen)
	}
	if !moved.StartAtUTC.Equal(start.Add(time.Hour)) {
		t.Fatalf("moved start = %v", moved.StartAtUTC)
	}
}

func TestPGStoreNotFound(t *testing.T) {
	store, _ := pgStore(t)
	ctx := context.Background()

	if _, err := store.GetBooking(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetBooking err = %v want ErrNotFound", err)
	}
	if _, err := store.GetEventType(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetEventType err = %v want ErrNotFound", err)
	}
	if err := store.UpdateHostTimezone(ctx, "nobody-"+uuid.NewString(), "UTC"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateHostTimezone err = %v want ErrNotFound", err)
	}
}

func TestPGStoreAvailabilityBatchIsAtomic(t *testing.T) {
	store, et := pgStore(t)
	ctx := context.Background()

	// The second rule breaks the start < end check constraint.
	batch := []AvailabilityRule{
		{UserID: et.UserID, DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"},
		{UserID: et.UserID, DayOfWeek: 2, StartTime: "12:00", EndTime: "09:00"},
	}
	if err := store.InsertAvailabilityRules(ctx, batch); err == nil {
		t.Fatal("expected the batch to fail")
	}
	rules, err := store.ListAvailabilityRules(ctx, et.UserID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("a failed batch must save nothing, have %+v", rules)
	}

	if err := store.InsertAvailabilityRules(ctx, batch[:1]); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if batch[0].ID == 0 {
		t.Fatal("expected the rule id to be filled in")
	}
}
