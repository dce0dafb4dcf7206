package availability

import (
	"sort"
	"time"
)

// Generate tiles each window with back-to-back slots of the given duration.
// A slot may end exactly at the window end but never past it. Output is
// ordered by start and deduplicated by (start, end).
func Generate(windows []TimeWindow, duration time.Duration) []Slot {
	if duration <= 0 {
		return nil
	}
	var out []Slot
	for _, w := range windows {
		for cur := w.Start; !cur.Add(duration).After(w.End); cur = cur.Add(duration) {
			out = append(out, Slot{Start: cur, End: cur.Add(duration)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].End.Before(out[j].End)
	})
	return dedupe(out)
}

func dedupe(in []Slot) []Slot {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, s := range in[1:] {
		if !s.Equal(out[len(out)-1]) {
			out = append(out, s)
		}
	}
	return out
}

// FilterFuture drops slots whose start is at or before now.
func FilterFuture(slots []Slot, now time.Time) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.Start.After(now) {
			out = append(out, s)
		}
	}
	return out
}
