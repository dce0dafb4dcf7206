// Package policy holds the booking checks that do not depend on slot shape:
// notice window and weekly frequency. Booking creation, rescheduling and the
// bookable-dates view all go through Guard so the rules live in one place.
package policy

import (
	"errors"
	"fmt"
	"time"

	"meeting-scheduler/internal/availability"
)

type Reason string

const (
	MinimumNoticeViolated Reason = "minimum_notice_violated"
	MaximumNoticeExceeded Reason = "maximum_notice_exceeded"
	WeeklyCapReached      Reason = "weekly_cap_reached"
)

type Violation struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (v *Violation) Error() string { return v.Message }

// Violations is every check that failed for one proposed start.
type Violations []Violation

func (vs Violations) Err() error {
	if len(vs) == 0 {
		return nil
	}
	errs := make([]error, len(vs))
	for i := range vs {
		errs[i] = &vs[i]
	}
	return errors.Join(errs...)
}

func (vs Violations) Has(r Reason) bool {
	for _, v := range vs {
		if v.Reason == r {
			return true
		}
	}
	return false
}

// CheckMinimumNotice fails when start is earlier than now + hours.
// A start exactly at the cutoff passes.
func CheckMinimumNotice(now, start time.Time, minimumNoticeHours int) *Violation {
	cutoff := now.Add(time.Duration(minimumNoticeHours) * time.Hour)
	if start.Before(cutoff) {
		return &Violation{
			Reason:  MinimumNoticeViolated,
			Message: fmt.Sprintf("this event requires at least %d hours notice", minimumNoticeHours),
		}
	}
	return nil
}

// CheckMaximumNotice fails when start is later than now + days.
func CheckMaximumNotice(now, start time.Time, maximumNoticeDays int) *Violation {
	cutoff := now.Add(time.Duration(maximumNoticeDays) * 24 * time.Hour)
	if start.After(cutoff) {
		return &Violation{
			Reason:  MaximumNoticeExceeded,
			Message: fmt.Sprintf("this event can only be booked up to %d days in advance", maximumNoticeDays),
		}
	}
	return nil
}

// CheckWeeklyCap fails when the week already holds maxBookingsPerWeek
// non-cancelled bookings. A nil cap means unlimited.
func CheckWeeklyCap(maxBookingsPerWeek *int, countInWeek int) *Violation {
	if maxBookingsPerWeek == nil {
		return nil
	}
	if countInWeek >= *maxBookingsPerWeek {
		return &Violation{
			Reason:  WeeklyCapReached,
			Message: fmt.Sprintf("maximum bookings per week (%d) reached for this event type", *maxBookingsPerWeek),
		}
	}
	return nil
}

// WeekBounds returns [Sunday 00:00, next Sunday 00:00) in loc for the week
// containing start. The span is 167 or 169 hours across a DST change.
func WeekBounds(start time.Time, loc *time.Location) (time.Time, time.Time) {
	local := start.In(loc)
	y, m, d := local.Date()
	sunday := d - int(local.Weekday())
	return time.Date(y, m, sunday, 0, 0, 0, 0, loc), time.Date(y, m, sunday+7, 0, 0, 0, 0, loc)
}

// CountInWeek counts non-cancelled bookings starting in the week that contains start.
func CountInWeek(bookings []availability.Booking, start time.Time, loc *time.Location) int {
	from, to := WeekBounds(start, loc)
	n := 0
	for _, b := range bookings {
		if !b.Blocks() {
			continue
		}
		if !b.Start.Before(from) && b.Start.Before(to) {
			n++
		}
	}
	return n
}

// Rules are the policy fields of an event type.
type Rules struct {
	MinimumNoticeHours int
	MaximumNoticeDays  int
	MaxBookingsPerWeek *int
}

type Guard struct {
	Rules    Rules
	Location *time.Location
}

func NewGuard(rules Rules, loc *time.Location) Guard {
	if loc == nil {
		loc = time.UTC
	}
	return Guard{Rules: rules, Location: loc}
}

// NoticeWindow is the span of start instants the notice checks accept.
func (g Guard) NoticeWindow(now time.Time) (earliest, latest time.Time) {
	earliest = now.Add(time.Duration(g.Rules.MinimumNoticeHours) * time.Hour)
	latest = now.Add(time.Duration(g.Rules.MaximumNoticeDays) * 24 * time.Hour)
	return earliest, latest
}

func (g Guard) WeekBounds(start time.Time) (time.Time, time.Time) {
	return WeekBounds(start, g.Location)
}

// Check runs every check and returns all failures; it never stops at the first.
func (g Guard) Check(now, start time.Time, countInWeek int) Violations {
	var out Violations
	for _, v := range []*Violation{
		CheckMinimumNotice(now, start, g.Rules.MinimumNoticeHours),
		CheckMaximumNotice(now, start, g.Rules.MaximumNoticeDays),
		CheckWeeklyCap(g.Rules.MaxBookingsPerWeek, countInWeek),
	} {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}
