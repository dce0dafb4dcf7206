package app

import (
	"time"

	"meeting-scheduler/internal/availability"
	"meeting-scheduler/internal/policy"
)

type Host struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
}

type AvailabilityRule struct {
	ID        int       `json:"id"`
	UserID    string    `json:"user_id"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Rule converts the stored row for the slot engine.
func (r AvailabilityRule) Rule() (availability.Rule, error) {
	return availability.ParseRule(r.DayOfWeek, r.StartTime, r.EndTime)
}

type EventType struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Slug               string    `json:"slug"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	DurationMinutes    int       `json:"duration_minutes"`
	MinimumNoticeHours int       `json:"minimum_notice_hours"`
	MaximumNoticeDays  int       `json:"maximum_notice_days"`
	MaxBookingsPerWeek *int      `json:"max_bookings_per_week"`
	CreatedAt          time.Time `json:"created_at,omitempty"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}

func (e EventType) PolicyRules() policy.Rules {
	return policy.Rules{
		MinimumNoticeHours: e.MinimumNoticeHours,
		MaximumNoticeDays:  e.MaximumNoticeDays,
		MaxBookingsPerWeek: e.MaxBookingsPerWeek,
	}
}

type Booking struct {
	ID                    string              `json:"id"`
	EventTypeID           string              `json:"event_type_id"`
	UserID                string              `json:"user_id"`
	GuestName             string              `json:"guest_name"`
	GuestEmail            string              `json:"guest_email"`
	GuestNotes            string              `json:"guest_notes,omitempty"`
	StartAtUTC            time.Time           `json:"start_at_utc"`
	EndAtUTC              time.Time           `json:"end_at_utc"`
	Status                availability.Status `json:"status"`
	GoogleCalendarEventID string              `json:"google_calendar_event_id,omitempty"`
	MeetLink              string              `json:"meet_link,omitempty"`
	CreatedAt             time.Time           `json:"created_at,omitempty"`
}

func (b Booking) Interval() availability.Booking {
	return availability.Booking{Start: b.StartAtUTC, End: b.EndAtUTC, Status: b.Status}
}

func toIntervals(bookings []Booking) []availability.Booking {
	out := make([]availability.Booking, len(bookings))
	for i, b := range bookings {
		out[i] = b.Interval()
	}
	return out
}
