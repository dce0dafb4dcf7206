package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"meeting-scheduler/internal/availability"
	"meeting-scheduler/internal/notify"
	"meeting-scheduler/internal/policy"
)

const sideEffectTimeout = 10 * time.Second

// schedule is everything slot computation needs for one event type.
type schedule struct {
	EventType EventType
	Host      Host
	Weekly    availability.WeeklyAvailability
	Guard     policy.Guard
}

func (s schedule) location() *time.Location { return s.Weekly.Location() }

func (a *App) loadSchedule(ctx context.Context, eventTypeID string) (schedule, error) {
	et, err := a.Store.GetEventType(ctx, eventTypeID)
	if err != nil {
		return schedule{}, fmt.Errorf("event type %s: %w", eventTypeID, err)
	}
	host, err := a.Store.GetHost(ctx, et.UserID)
	if err != nil {
		return schedule{}, fmt.Errorf("host %s: %w", et.UserID, err)
	}
	rows, err := a.Store.ListAvailabilityRules(ctx, host.ID)
	if err != nil {
		return schedule{}, err
	}

	rules := make([]availability.Rule, 0, len(rows))
	for _, row := range rows {
		r, err := row.Rule()
		if err == nil {
			err = r.Validate()
		}
		if err != nil {
			// Rows are validated on write; a bad one here is skipped, not fatal.
			a.log().Warn("skipping invalid availability rule",
				zap.Int("rule_id", row.ID), zap.String("host_id", host.ID), zap.Error(err))
			continue
		}
		rules = append(rules, r)
	}

	weekly, err := availability.NewWeeklyAvailability(host.Timezone, rules)
	if err != nil {
		return schedule{}, fmt.Errorf("host %s: %w", host.ID, err)
	}
	return schedule{
		EventType: et,
		Host:      host,
		Weekly:    weekly,
		Guard:     policy.NewGuard(et.PolicyRules(), weekly.Location()),
	}, nil
}

// AvailableSlots returns the open slots of the event type on a host-local
// date, with slots that already started removed.
func (a *App) AvailableSlots(ctx context.Context, eventTypeID string, date availability.Date) ([]availability.Slot, error) {
	s, err := a.loadSchedule(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	loc := s.location()
	bookings, err := a.Store.ListActiveBookings(ctx, s.EventType.ID, date.StartOfDay(loc), date.AddDays(1).StartOfDay(loc))
	if err != nil {
		return nil, err
	}
	slots := availability.AvailableSlots(s.Weekly, date, s.EventType.DurationMinutes, toIntervals(bookings))
	return availability.FilterFuture(slots, a.now()), nil
}

// BookableDates lists host-local dates inside the event type's notice window
// that still have an open slot and whose week is under the weekly cap.
func (a *App) BookableDates(ctx context.Context, eventTypeID string) ([]availability.Date, error) {
	s, err := a.loadSchedule(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	now := a.now()
	earliest, latest := s.Guard.NoticeWindow(now)
	from, _ := s.Guard.WeekBounds(earliest)
	_, to := s.Guard.WeekBounds(latest)

	bookings, err := a.Store.ListActiveBookings(ctx, s.EventType.ID, from, to)
	if err != nil {
		return nil, err
	}
	intervals := toIntervals(bookings)
	dates := availability.BookableDates(s.Weekly, s.EventType.DurationMinutes, intervals, now, earliest, latest)

	out := make([]availability.Date, 0, len(dates))
	for _, d := range dates {
		count := policy.CountInWeek(intervals, d.StartOfDay(s.location()), s.location())
		if policy.CheckWeeklyCap(s.EventType.MaxBookingsPerWeek, count) != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// BookingRequest is a guest's request for a slot.
type BookingRequest struct {
	EventTypeID string
	GuestName   string
	GuestEmail  string
	GuestNotes  string
	Start       time.Time
	End         time.Time
}

func (r BookingRequest) validate() error {
	if strings.TrimSpace(r.GuestName) == "" {
		return fmt.Errorf("%w: guest name required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(r.GuestEmail); err != nil {
		return fmt.Errorf("%w: invalid guest email", ErrInvalidInput)
	}
	return nil
}

// offeredWindow checks that [start, end) is exactly one of the slots the
// schedule offers and has not started yet.
func (a *App) offeredWindow(s schedule, start, end time.Time, now time.Time) (availability.TimeWindow, error) {
	w := availability.TimeWindow{Start: start.UTC(), End: end.UTC()}
	if w.IsEmpty() {
		return w, fmt.Errorf("%w: start must be before end", ErrInvalidInput)
	}
	if !availability.IsOfferedSlot(s.Weekly, w, s.EventType.DurationMinutes) {
		return w, fmt.Errorf("%w: requested time is not an offered slot", ErrInvalidInput)
	}
	if !w.Start.After(now) {
		return w, fmt.Errorf("%w: requested slot has already started", ErrInvalidInput)
	}
	return w, nil
}

// writeCheck re-runs policy and conflict checks against what the store read
// inside the write transaction. Policy failures are reported before conflicts.
func (a *App) writeCheck(s schedule, w availability.TimeWindow, now time.Time) WriteCheck {
	weekFrom, weekTo := s.Guard.WeekBounds(w.Start)
	return WriteCheck{
		WeekFrom: weekFrom,
		WeekTo:   weekTo,
		Verify: func(snap WriteSnapshot) error {
			if vs := s.Guard.Check(now, w.Start, snap.WeekCount); len(vs) > 0 {
				return &PolicyError{Violations: vs}
			}
			if _, hit := availability.FirstConflict(w, toIntervals(snap.Overlapping)); hit {
				return ErrSlotUnavailable
			}
			return nil
		},
	}
}

func (a *App) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	if err := req.validate(); err != nil {
		return Booking{}, err
	}
	s, err := a.loadSchedule(ctx, req.EventTypeID)
	if err != nil {
		return Booking{}, err
	}
	now := a.now()
	w, err := a.offeredWindow(s, req.Start, req.End, now)
	if err != nil {
		return Booking{}, err
	}

	b := Booking{
		EventTypeID: s.EventType.ID,
		UserID:      s.Host.ID,
		GuestName:   strings.TrimSpace(req.GuestName),
		GuestEmail:  strings.TrimSpace(req.GuestEmail),
		GuestNotes:  req.GuestNotes,
		StartAtUTC:  w.Start,
		EndAtUTC:    w.End,
		Status:      availability.StatusConfirmed,
	}
	if err := a.Store.CreateBooking(ctx, &b, a.writeCheck(s, w, now)); err != nil {
		return Booking{}, err
	}

	a.log().Info("booking created",
		zap.String("booking_id", b.ID), zap.String("event_type_id", b.EventTypeID),
		zap.Time("start", b.StartAtUTC))
	a.afterCommit(notify.BookingCreated, s.Host, s.EventType, b)
	return b, nil
}

// RescheduleBooking moves an active booking to another offered slot. The
// booking itself is ignored by the conflict and weekly-cap checks.
func (a *App) RescheduleBooking(ctx context.Context, id string, start, end time.Time) (Booking, error) {
	current, err := a.Store.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if current.Status == availability.StatusCancelled {
		return Booking{}, ErrAlreadyCancelled
	}
	s, err := a.loadSchedule(ctx, current.EventTypeID)
	if err != nil {
		return Booking{}, err
	}
	now := a.now()
	w, err := a.offeredWindow(s, start, end, now)
	if err != nil {
		return Booking{}, err
	}

	check := a.writeCheck(s, w, now)
	check.ExcludeID = current.ID
	updated, err := a.Store.RescheduleBooking(ctx, current.ID, w.Start, w.End, check)
	if err != nil {
		return Booking{}, err
	}

	a.log().Info("booking rescheduled",
		zap.String("booking_id", updated.ID),
		zap.Time("from", current.StartAtUTC), zap.Time("to", updated.StartAtUTC))
	a.afterCommit(notify.BookingRescheduled, s.Host, s.EventType, updated)
	return updated, nil
}

func (a *App) CancelBooking(ctx context.Context, id string) (Booking, error) {
	current, err := a.Store.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if current.Status == availability.StatusCancelled {
		return Booking{}, ErrAlreadyCancelled
	}
	updated, err := a.Store.SetBookingStatus(ctx, id, availability.StatusCancelled)
	if err != nil {
		return Booking{}, err
	}

	a.log().Info("booking cancelled", zap.String("booking_id", updated.ID))

	host, err := a.Store.GetHost(ctx, updated.UserID)
	if err != nil {
		a.log().Warn("cancel side effects skipped", zap.String("booking_id", updated.ID), zap.Error(err))
		return updated, nil
	}
	et, err := a.Store.GetEventType(ctx, updated.EventTypeID)
	if err != nil {
		a.log().Warn("cancel side effects skipped", zap.String("booking_id", updated.ID), zap.Error(err))
		return updated, nil
	}
	a.afterCommit(notify.BookingCancelled, host, et, updated)
	return updated, nil
}

// SetBookingStatus applies a host-driven status change. Only pending to
// confirmed and any active status to cancelled are allowed.
func (a *App) SetBookingStatus(ctx context.Context, id string, status availability.Status) (Booking, error) {
	switch status {
	case availability.StatusCancelled:
		return a.CancelBooking(ctx, id)
	case availability.StatusConfirmed:
	default:
		return Booking{}, fmt.Errorf("%w: status must be confirmed or cancelled", ErrInvalidInput)
	}

	current, err := a.Store.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	switch current.Status {
	case availability.StatusCancelled:
		return Booking{}, ErrAlreadyCancelled
	case availability.StatusConfirmed:
		return current, nil
	}
	return a.Store.SetBookingStatus(ctx, id, availability.StatusConfirmed)
}

// afterCommit mirrors the booking to the host's calendar and publishes the
// lifecycle event. It runs detached from the request; failures are logged.
func (a *App) afterCommit(kind notify.EventType, host Host, et EventType, b Booking) {
	a.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		log := a.log().With(zap.String("booking_id", b.ID), zap.String("event", string(kind)))

		if a.Calendar != nil {
			b = a.syncCalendar(ctx, log, kind, host, et, b)
		}

		if a.Events == nil {
			return
		}
		evt := notify.Event{
			Type:          kind,
			BookingID:     b.ID,
			EventTypeID:   et.ID,
			EventTitle:    et.Title,
			HostID:        host.ID,
			HostEmail:     host.Email,
			HostTimezone:  host.Timezone,
			GuestName:     b.GuestName,
			GuestEmail:    b.GuestEmail,
			StartAtUTC:    b.StartAtUTC,
			EndAtUTC:      b.EndAtUTC,
			MeetLink:      b.MeetLink,
			OccurredAtUTC: a.now(),
		}
		if err := a.Events.Publish(ctx, evt); err != nil {
			log.Error("publish booking event", zap.Error(err))
		}
	})
}

func (a *App) syncCalendar(ctx context.Context, log *zap.Logger, kind notify.EventType, host Host, et EventType, b Booking) Booking {
	var err error
	switch kind {
	case notify.BookingCreated:
		var eventID, link string
		eventID, link, err = a.Calendar.CreateEvent(ctx, host, et, b)
		if err == nil {
			b.GoogleCalendarEventID, b.MeetLink = eventID, link
			err = a.Store.SetCalendarEvent(ctx, b.ID, eventID, link)
		}
	case notify.BookingRescheduled:
		var link string
		link, err = a.Calendar.UpdateEvent(ctx, host, et, b)
		if err == nil && link != b.MeetLink {
			b.MeetLink = link
			err = a.Store.SetCalendarEvent(ctx, b.ID, b.GoogleCalendarEventID, link)
		}
	case notify.BookingCancelled:
		err = a.Calendar.DeleteEvent(ctx, host, b)
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		log.Debug("host has no calendar connected", zap.String("host_id", host.ID))
	default:
		log.Error("calendar sync failed", zap.String("host_id", host.ID), zap.Error(err))
	}
	return b
}
