package availability

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidLocalTime = errors.New("invalid local time")
	ErrInvalidDate      = errors.New("invalid date")
	ErrUnknownTimezone  = errors.New("unknown timezone")
)

// LocalTime is a wall-clock reading (minutes after midnight) with no zone attached.
// It only becomes an instant once combined with a Date and a *time.Location.
type LocalTime struct {
	minutes int
}

func NewLocalTime(hour, minute int) (LocalTime, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return LocalTime{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidLocalTime, hour, minute)
	}
	return LocalTime{minutes: hour*60 + minute}, nil
}

// ParseLocalTime accepts "HH:MM" and tolerates the "HH:MM:SS" form Postgres
// returns for TIME columns (seconds are dropped).
func ParseLocalTime(s string) (LocalTime, error) {
	if len(s) > 5 && s[5] == ':' {
		s = s[:5]
	}
	if len(s) != 5 || s[2] != ':' {
		return LocalTime{}, fmt.Errorf("%w: %q", ErrInvalidLocalTime, s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return LocalTime{}, fmt.Errorf("%w: %q", ErrInvalidLocalTime, s)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	return NewLocalTime(h, m)
}

func (t LocalTime) Hour() int   { return t.minutes / 60 }
func (t LocalTime) Minute() int { return t.minutes % 60 }

func (t LocalTime) Before(o LocalTime) bool { return t.minutes < o.minutes }

func (t LocalTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Date is a calendar day with no zone: "this day in the host's locale".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date t falls on in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Weekday is independent of any zone: a civil date has the same weekday everywhere.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// At resolves the wall-clock reading t on this date in loc to an instant,
// using loc's offset rules for this specific date. A reading inside a
// spring-forward gap moves forward by the length of the gap (02:30 becomes
// 03:30 when 02:00 jumps to 03:00), whichever side of UTC loc is on.
func (d Date) At(t LocalTime, loc *time.Location) time.Time {
	at := time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, loc)
	want := time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, time.UTC)
	got := time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC)
	// time.Date may resolve a gap reading backward into the old offset.
	if got.Before(want) {
		at = at.Add(want.Sub(got))
	}
	return at
}

// StartOfDay is local midnight of the date in loc.
func (d Date) StartOfDay(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// LoadLocation wraps time.LoadLocation with ErrUnknownTimezone. An empty name
// is rejected rather than silently mapped to UTC, and "Local" is rejected so
// the server's zone never leaks into a host schedule.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	return loc, nil
}
