package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"meeting-scheduler/internal/availability"
	"meeting-scheduler/internal/notify"
)

const (
	testSecret    = "test-secret"
	testHost      = "host-1"
	testEventType = "et-1"
)

// sunday is 2026-01-04 12:00 UTC. The next day is a Monday; Stockholm is
// UTC+1 in January.
var sunday = time.Date(2026, 1, 4, 12, 0, 0, 0, time.UTC)

type fakeCalendar struct {
	mu      sync.Mutex
	created []string
	updated []string
	deleted []string
}

func (f *fakeCalendar) CreateEvent(_ context.Context, _ Host, _ EventType, b Booking) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, b.ID)
	return "gcal-" + b.ID, "https://meet.google.com/" + b.ID, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, _ Host, _ EventType, b Booking) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, b.ID)
	return b.MeetLink, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, _ Host, b Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, b.ID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *fakePublisher) Publish(_ context.Context, evt notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) types() []notify.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	app      *App
	store    *memStore
	calendar *fakeCalendar
	events   *fakePublisher
	router   *gin.Engine
}

// newHarness seeds a Stockholm host with Monday 09:00-12:00 availability and
// a 60 minute event type with no notice limits beyond 60 days.
func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	store.hosts[testHost] = Host{ID: testHost, Username: "anna", Email: "anna@example.com", Timezone: "Europe/Stockholm"}
	store.rules[testHost] = []AvailabilityRule{{ID: 100, UserID: testHost, DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"}}
	store.eventTypes[testEventType] = EventType{
		ID: testEventType, UserID: testHost, Slug: "intro", Title: "Intro call",
		DurationMinutes: 60, MaximumNoticeDays: 60,
	}

	h := &harness{store: store, calendar: &fakeCalendar{}, events: &fakePublisher{}}
	h.app = &App{
		Store:    store,
		Calendar: h.calendar,
		Events:   h.events,
		StateKey: []byte(testSecret),
		Now:      func() time.Time { return sunday },
		Async:    func(fn func()) { fn() },
	}
	h.router = gin.New()
	h.app.Register(h.router, AuthMiddleware(testSecret, []string{"static-token"}), nil)
	return h
}

func (h *harness) setNow(t time.Time) { h.app.Now = func() time.Time { return t } }

func (h *harness) updateEventType(fn func(*EventType)) {
	et := h.store.eventTypes[testEventType]
	fn(&et)
	h.store.eventTypes[testEventType] = et
}

func (h *harness) addBooking(id string, start time.Time, minutes int, status availability.Status) {
	h.store.bookings[id] = Booking{
		ID: id, EventTypeID: testEventType, UserID: testHost,
		GuestName: "Existing", GuestEmail: "existing@example.com",
		StartAtUTC: start, EndAtUTC: start.Add(time.Duration(minutes) * time.Minute),
		Status: status,
	}
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func hostToken(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func utc(day, hour, minute int) time.Time {
	return time.Date(2026, 1, day, hour, minute, 0, 0, time.UTC)
}

func intPtr(n int) *int { return &n }

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d want %d, body %s", rec.Code, want, rec.Body.String())
	}
}
