package policy

import (
	"errors"
	"testing"
	"time"

	"meeting-scheduler/internal/availability"
)

func intPtr(v int) *int { return &v }

func TestCheckMinimumNotice_Cutoff(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(24 * time.Hour)

	if v := CheckMinimumNotice(now, cutoff.Add(-time.Minute), 24); v == nil || v.Reason != MinimumNoticeViolated {
		t.Fatalf("expected violation one minute before cutoff, got %v", v)
	}
	if v := CheckMinimumNotice(now, cutoff, 24); v != nil {
		t.Fatalf("expected pass exactly at cutoff, got %v", v)
	}
	if v := CheckMinimumNotice(now, now, 0); v != nil {
		t.Fatalf("expected zero notice to accept now, got %v", v)
	}
}

func TestCheckMaximumNotice(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(14 * 24 * time.Hour)

	if v := CheckMaximumNotice(now, cutoff, 14); v != nil {
		t.Fatalf("expected pass exactly at cutoff, got %v", v)
	}
	if v := CheckMaximumNotice(now, cutoff.Add(time.Minute), 14); v == nil || v.Reason != MaximumNoticeExceeded {
		t.Fatalf("expected violation past cutoff, got %v", v)
	}
}

func TestCheckWeeklyCap(t *testing.T) {
	tests := []struct {
		name  string
		cap   *int
		count int
		fail  bool
	}{
		{"unlimited", nil, 1000, false},
		{"below cap", intPtr(3), 2, false},
		{"at cap", intPtr(3), 3, true},
		{"above cap", intPtr(3), 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := CheckWeeklyCap(tt.cap, tt.count)
			if (v != nil) != tt.fail {
				t.Fatalf("fail=%v want %v", v != nil, tt.fail)
			}
		})
	}
}

func TestWeekBounds_HostTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tzdata: %v", err)
	}
	// Sunday 2026-01-11 01:00 UTC is still Saturday 22:00 in Sao Paulo.
	start := time.Date(2026, 1, 11, 1, 0, 0, 0, time.UTC)
	from, to := WeekBounds(start, loc)
	wantFrom := time.Date(2026, 1, 4, 0, 0, 0, 0, loc)
	if !from.Equal(wantFrom) {
		t.Fatalf("from=%v want %v", from, wantFrom)
	}
	if to.Sub(from) != 7*24*time.Hour {
		t.Fatalf("unexpected week length %s", to.Sub(from))
	}
}

func TestWeekBounds_DSTWeek(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		t.Skipf("tzdata: %v", err)
	}
	// The week starting Sunday 2026-03-29 loses an hour.
	from, to := WeekBounds(time.Date(2026, 4, 1, 12, 0, 0, 0, loc), loc)
	if from.In(loc).Hour() != 0 || from.In(loc).Weekday() != time.Sunday {
		t.Fatalf("week does not start at local Sunday midnight: %v", from.In(loc))
	}
	if got := to.Sub(from); got != 167*time.Hour {
		t.Fatalf("expected 167h week, got %s", got)
	}
}

func TestCountInWeek(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 1, 7, 9, 0, 0, 0, loc) // Wednesday
	mk := func(day int, status availability.Status) availability.Booking {
		s := time.Date(2026, 1, day, 9, 0, 0, 0, loc)
		return availability.Booking{Start: s, End: s.Add(time.Hour), Status: status}
	}
	bookings := []availability.Booking{
		mk(3, availability.StatusConfirmed),  // previous Saturday
		mk(4, availability.StatusConfirmed),  // Sunday, in week
		mk(6, availability.StatusPending),    // in week
		mk(8, availability.StatusCancelled),  // ignored
		mk(10, availability.StatusConfirmed), // Saturday, in week
		mk(11, availability.StatusConfirmed), // next Sunday
	}
	if got := CountInWeek(bookings, start, loc); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestGuardCheck_CollectsAll(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	g := NewGuard(Rules{MinimumNoticeHours: 48, MaximumNoticeDays: 1, MaxBookingsPerWeek: intPtr(1)}, time.UTC)

	// 30 hours out: too soon for 48h notice and too far for 1 day max, week full.
	vs := g.Check(now, now.Add(30*time.Hour), 1)
	if len(vs) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(vs), vs)
	}
	for _, r := range []Reason{MinimumNoticeViolated, MaximumNoticeExceeded, WeeklyCapReached} {
		if !vs.Has(r) {
			t.Fatalf("missing %s", r)
		}
	}
	err := vs.Err()
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected joined error to unwrap to *Violation, got %v", err)
	}

	if vs := g.Check(now, now.Add(48*time.Hour), 0); len(vs) != 1 || !vs.Has(MaximumNoticeExceeded) {
		t.Fatalf("expected only max notice violation, got %v", vs)
	}
	if err := (Violations{}).Err(); err != nil {
		t.Fatalf("expected nil error for no violations, got %v", err)
	}
}

func TestGuardNoticeWindow(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	g := NewGuard(Rules{MinimumNoticeHours: 2, MaximumNoticeDays: 7}, nil)
	earliest, latest := g.NoticeWindow(now)
	if !earliest.Equal(now.Add(2 * time.Hour)) {
		t.Fatalf("earliest=%v", earliest)
	}
	if !latest.Equal(now.AddDate(0, 0, 7)) {
		t.Fatalf("latest=%v", latest)
	}
	if g.Location != time.UTC {
		t.Fatalf("expected nil location to default to UTC")
	}
}
