package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestMessage(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	evt := Event{
		Type:       BookingCreated,
		BookingID:  "b-1",
		GuestEmail: "guest@example.com",
		StartAtUTC: start,
		EndAtUTC:   start.Add(time.Hour),
	}
	msg, err := Message("booking.events.v1", evt)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if msg.Topic != "booking.events.v1" || string(msg.Key) != "b-1" {
		t.Fatalf("unexpected topic/key %q/%q", msg.Topic, msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(BookingCreated) {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.BookingID != "b-1" || !decoded.StartAtUTC.Equal(start) {
		t.Fatalf("payload lost fields: %+v", decoded)
	}
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	p := New(nil, "topic")
	if _, ok := p.(Nop); !ok {
		t.Fatalf("expected Nop, got %T", p)
	}
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
}
