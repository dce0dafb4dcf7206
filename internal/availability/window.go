package availability

import (
	"encoding/json"
	"time"
)

// TimeWindow is the half-open interval [Start, End) between two instants.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Slot is a bookable window produced by Generate; End - Start is the event duration.
type Slot = TimeWindow

func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

func (w TimeWindow) IsEmpty() bool { return !w.Start.Before(w.End) }

// Overlaps reports whether the two windows share at least one instant.
// Touching endpoints do not overlap.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether o lies entirely inside w.
func (w TimeWindow) Contains(o TimeWindow) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

func (w TimeWindow) ContainsInstant(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w TimeWindow) Equal(o TimeWindow) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

type windowJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarshalJSON always emits UTC RFC3339 timestamps.
func (w TimeWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{
		Start: w.Start.UTC().Format(time.RFC3339),
		End:   w.End.UTC().Format(time.RFC3339),
	})
}

func (w *TimeWindow) UnmarshalJSON(b []byte) error {
	var raw windowJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	start, err := time.Parse(time.RFC3339, raw.Start)
	if err != nil {
		return err
	}
	end, err := time.Parse(time.RFC3339, raw.End)
	if err != nil {
		return err
	}
	w.Start, w.End = start.UTC(), end.UTC()
	return nil
}
