package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidRule = errors.New("invalid availability rule")

// Rule is one recurring weekly window in the host's local time. Rules never
// cross midnight.
type Rule struct {
	DayOfWeek time.Weekday
	Start     LocalTime
	End       LocalTime
}

// ParseRule builds a Rule from stored fields without validating ordering;
// see Validate for the write-time check.
func ParseRule(dayOfWeek int, start, end string) (Rule, error) {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return Rule{}, fmt.Errorf("%w: day_of_week %d out of range 0..6", ErrInvalidRule, dayOfWeek)
	}
	s, err := ParseLocalTime(start)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: start: %w", ErrInvalidRule, err)
	}
	e, err := ParseLocalTime(end)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: end: %w", ErrInvalidRule, err)
	}
	return Rule{DayOfWeek: time.Weekday(dayOfWeek), Start: s, End: e}, nil
}

// Validate is applied when a host saves a rule. Slot computation itself
// tolerates degenerate rules.
func (r Rule) Validate() error {
	if !r.Start.Before(r.End) {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidRule, r.Start, r.End)
	}
	return nil
}

// WeeklyAvailability is a host's recurring schedule bound to the host's zone.
type WeeklyAvailability struct {
	loc   *time.Location
	rules []Rule
}

func NewWeeklyAvailability(timezone string, rules []Rule) (WeeklyAvailability, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return WeeklyAvailability{}, err
	}
	return WeeklyAvailabilityIn(loc, rules), nil
}

func WeeklyAvailabilityIn(loc *time.Location, rules []Rule) WeeklyAvailability {
	if loc == nil {
		loc = time.UTC
	}
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return WeeklyAvailability{loc: loc, rules: cp}
}

func (wa WeeklyAvailability) Location() *time.Location {
	if wa.loc == nil {
		return time.UTC
	}
	return wa.loc
}

func (wa WeeklyAvailability) HasRulesOn(day time.Weekday) bool {
	for _, r := range wa.rules {
		if r.DayOfWeek == day {
			return true
		}
	}
	return false
}

// WindowsForDate resolves every rule matching the date's weekday to absolute
// windows, one per rule, ordered by start. Degenerate rules yield an empty
// window. Overlapping windows are not merged.
func (wa WeeklyAvailability) WindowsForDate(d Date) []TimeWindow {
	day := d.Weekday()
	loc := wa.Location()
	var out []TimeWindow
	for _, r := range wa.rules {
		if r.DayOfWeek != day {
			continue
		}
		w := TimeWindow{Start: d.At(r.Start, loc), End: d.At(r.End, loc)}
		if w.End.Before(w.Start) {
			w.End = w.Start
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
