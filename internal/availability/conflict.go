package availability

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Booking is the slice of a committed booking the slot engine looks at.
// End - Start may differ from the event type's current duration.
type Booking struct {
	Start  time.Time
	End    time.Time
	Status Status
}

func (b Booking) Window() TimeWindow { return TimeWindow{Start: b.Start, End: b.End} }

// Blocks reports whether the booking occupies its interval at all.
func (b Booking) Blocks() bool { return b.Status != StatusCancelled }

// Filter keeps the candidates that do not overlap any non-cancelled booking,
// preserving candidate order. Back-to-back adjacency is not a conflict.
func Filter(candidates []Slot, bookings []Booking) []Slot {
	out := make([]Slot, 0, len(candidates))
	for _, s := range candidates {
		if _, hit := FirstConflict(s, bookings); !hit {
			out = append(out, s)
		}
	}
	return out
}

// FirstConflict returns the first non-cancelled booking overlapping w.
// The booking write path uses it to re-check a chosen slot against freshly
// read bookings.
func FirstConflict(w TimeWindow, bookings []Booking) (Booking, bool) {
	for _, b := range bookings {
		if b.Blocks() && w.Overlaps(b.Window()) {
			return b, true
		}
	}
	return Booking{}, false
}
