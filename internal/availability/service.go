package availability

import "time"

// AvailableSlots is the slot-shape computation for one date: resolve the
// weekly rules, tile with the duration, drop anything overlapping a
// non-cancelled booking. It does not filter past slots or apply booking
// policy; callers do that afterwards, in that order.
func AvailableSlots(wa WeeklyAvailability, date Date, durationMinutes int, bookings []Booking) []Slot {
	windows := wa.WindowsForDate(date)
	candidates := Generate(windows, time.Duration(durationMinutes)*time.Minute)
	return Filter(candidates, bookings)
}

// IsOfferedSlot reports whether w is exactly one of the slot shapes the
// schedule produces for the host-local date w starts on, ignoring bookings.
func IsOfferedSlot(wa WeeklyAvailability, w TimeWindow, durationMinutes int) bool {
	date := DateOf(w.Start.In(wa.Location()))
	for _, s := range AvailableSlots(wa, date, durationMinutes, nil) {
		if s.Equal(w) {
			return true
		}
	}
	return false
}

// BookableDates lists the host-local dates between earliest and latest
// (inclusive, by date) that still have at least one slot starting after
// both now and earliest and no later than latest.
func BookableDates(wa WeeklyAvailability, durationMinutes int, bookings []Booking, now, earliest, latest time.Time) []Date {
	loc := wa.Location()
	first := DateOf(earliest.In(loc))
	last := DateOf(latest.In(loc))

	var dates []Date
	for d := first; !last.Before(d); d = d.AddDays(1) {
		if !wa.HasRulesOn(d.Weekday()) {
			continue
		}
		for _, s := range FilterFuture(AvailableSlots(wa, d, durationMinutes, bookings), now) {
			if s.Start.Before(earliest) || s.Start.After(latest) {
				continue
			}
			dates = append(dates, d)
			break
		}
	}
	return dates
}
