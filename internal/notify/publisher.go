// Package notify publishes booking lifecycle events for downstream consumers
// (the mailer, analytics). Publishing happens after the booking commits and
// its outcome never affects the booking.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	BookingCreated     EventType = "booking.created"
	BookingRescheduled EventType = "booking.rescheduled"
	BookingCancelled   EventType = "booking.cancelled"
)

type Event struct {
	Type          EventType `json:"type"`
	BookingID     string    `json:"booking_id"`
	EventTypeID   string    `json:"event_type_id"`
	EventTitle    string    `json:"event_title,omitempty"`
	HostID        string    `json:"host_id"`
	HostEmail     string    `json:"host_email,omitempty"`
	HostTimezone  string    `json:"host_timezone,omitempty"`
	GuestName     string    `json:"guest_name"`
	GuestEmail    string    `json:"guest_email"`
	StartAtUTC    time.Time `json:"start_at_utc"`
	EndAtUTC      time.Time `json:"end_at_utc"`
	MeetLink      string    `json:"meet_link,omitempty"`
	OccurredAtUTC time.Time `json:"occurred_at_utc"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Message builds the Kafka record for evt: keyed by booking id so every event
// of one booking lands on the same partition in order.
func Message(topic string, evt Event) (kafka.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(evt.BookingID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}, nil
}

type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		topic: topic,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	msg, err := Message(p.topic, evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// New returns a Kafka publisher, or Nop when brokers is empty.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(brokers, topic)
}
