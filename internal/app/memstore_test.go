package app

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"meeting-scheduler/internal/availability"
)

// memStore is an in-memory Store with the same write-check semantics as
// PGStore, minus the database.
type memStore struct {
	mu         sync.Mutex
	hosts      map[string]Host
	rules      map[string][]AvailabilityRule
	eventTypes map[string]EventType
	bookings   map[string]Booking
	tokens     map[string]*oauth2.Token
	nextID     int
	pingErr    error
	// insertErr fails multi-rule inserts, as a database error partway
	// through the batch would.
	insertErr  error
}

func newMemStore() *memStore {
	return &memStore{
		hosts:      map[string]Host{},
		rules:      map[string][]AvailabilityRule{},
		eventTypes: map[string]EventType{},
		bookings:   map[string]Booking{},
		tokens:     map[string]*oauth2.Token{},
		nextID:     1000,
	}
}

func (s *memStore) id(prefix string) string {
	s.nextID++
	return prefix + "-" + strconv.Itoa(s.nextID)
}

func (s *memStore) GetHost(_ context.Context, id string) (Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hosts[id]
	if !ok {
		return Host{}, ErrNotFound
	}
	return h, nil
}

func (s *memStore) UpdateHostTimezone(_ context.Context, id, timezone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hosts[id]
	if !ok {
		return ErrNotFound
	}
	h.Timezone = timezone
	s.hosts[id] = h
	return nil
}

func (s *memStore) ListAvailabilityRules(_ context.Context, userID string) ([]AvailabilityRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AvailabilityRule(nil), s.rules[userID]...), nil
}

func (s *memStore) InsertAvailabilityRules(_ context.Context, rules []AvailabilityRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil && len(rules) > 1 {
		return s.insertErr
	}
	for i := range rules {
		s.nextID++
		rules[i].ID = s.nextID
	}
	for _, r := range rules {
		s.rules[r.UserID] = append(s.rules[r.UserID], r)
	}
	return nil
}

func (s *memStore) UpdateAvailabilityRule(_ context.Context, r *AvailabilityRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.rules[r.UserID] {
		if cur.ID == r.ID {
			s.rules[r.UserID][i] = *r
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) DeleteAvailabilityRule(_ context.Context, userID string, ruleID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := s.rules[userID]
	for i, cur := range rules {
		if cur.ID == ruleID {
			s.rules[userID] = append(rules[:i], rules[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) CreateEventType(_ context.Context, e *EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = s.id("et")
	}
	s.eventTypes[e.ID] = *e
	return nil
}

func (s *memStore) GetEventType(_ context.Context, id string) (EventType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.eventTypes[id]
	if !ok {
		return EventType{}, ErrNotFound
	}
	return e, nil
}

func (s *memStore) ListEventTypes(_ context.Context, userID string) ([]EventType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []EventType
	for _, e := range s.eventTypes {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) UpdateEventType(_ context.Context, e *EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.eventTypes[e.ID]; !ok {
		return ErrNotFound
	}
	s.eventTypes[e.ID] = *e
	return nil
}

func (s *memStore) DeleteEventType(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.eventTypes[id]
	if !ok || e.UserID != userID {
		return ErrNotFound
	}
	delete(s.eventTypes, id)
	return nil
}

func (s *memStore) sorted(keep func(Booking) bool) []Booking {
	var out []Booking
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAtUTC.Before(out[j].StartAtUTC) })
	return out
}

func (s *memStore) ListActiveBookings(_ context.Context, eventTypeID string, from, to time.Time) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(b Booking) bool {
		return b.EventTypeID == eventTypeID && b.Status != availability.StatusCancelled &&
			b.StartAtUTC.Before(to) && b.EndAtUTC.After(from)
	}), nil
}

func (s *memStore) ListBookings(_ context.Context, userID string, from, to time.Time, filtered bool) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(b Booking) bool {
		if b.UserID != userID {
			return false
		}
		return !filtered || (!b.StartAtUTC.Before(from) && b.StartAtUTC.Before(to))
	}), nil
}

func (s *memStore) GetBooking(_ context.Context, id string) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

func (s *memStore) snapshot(eventTypeID string, w availability.TimeWindow, check WriteCheck) WriteSnapshot {
	var snap WriteSnapshot
	for _, b := range s.bookings {
		if b.EventTypeID != eventTypeID || b.Status == availability.StatusCancelled || b.ID == check.ExcludeID {
			continue
		}
		if b.Interval().Window().Overlaps(w) {
			snap.Overlapping = append(snap.Overlapping, b)
		}
		if !b.StartAtUTC.Before(check.WeekFrom) && b.StartAtUTC.Before(check.WeekTo) {
			snap.WeekCount++
		}
	}
	return snap
}

func (s *memStore) CreateBooking(_ context.Context, b *Booking, check WriteCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.eventTypes[b.EventTypeID]; !ok {
		return ErrNotFound
	}
	snap := s.snapshot(b.EventTypeID, availability.TimeWindow{Start: b.StartAtUTC, End: b.EndAtUTC}, check)
	if check.Verify != nil {
		if err := check.Verify(snap); err != nil {
			return err
		}
	}
	if b.ID == "" {
		b.ID = s.id("bk")
	}
	b.CreatedAt = time.Now().UTC()
	s.bookings[b.ID] = *b
	return nil
}

func (s *memStore) RescheduleBooking(_ context.Context, id string, start, end time.Time, check WriteCheck) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	check.ExcludeID = id
	snap := s.snapshot(cur.EventTypeID, availability.TimeWindow{Start: start, End: end}, check)
	if check.Verify != nil {
		if err := check.Verify(snap); err != nil {
			return Booking{}, err
		}
	}
	if cur.Status == availability.StatusCancelled {
		return Booking{}, ErrAlreadyCancelled
	}
	cur.StartAtUTC, cur.EndAtUTC = start.UTC(), end.UTC()
	s.bookings[id] = cur
	return cur, nil
}

func (s *memStore) SetBookingStatus(_ context.Context, id string, status availability.Status) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	if b.Status == availability.StatusCancelled {
		return Booking{}, ErrAlreadyCancelled
	}
	b.Status = status
	s.bookings[id] = b
	return b, nil
}

func (s *memStore) SetCalendarEvent(_ context.Context, bookingID, eventID, meetLink string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	b.GoogleCalendarEventID, b.MeetLink = eventID, meetLink
	s.bookings[bookingID] = b
	return nil
}

func (s *memStore) GetCalendarToken(_ context.Context, userID string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return tok, nil
}

func (s *memStore) SaveCalendarToken(_ context.Context, userID string, tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = tok
	return nil
}

func (s *memStore) Ping(context.Context) error { return s.pingErr }
