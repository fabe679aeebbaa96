package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Forwarder relays bus events to a Kafka topic for downstream email, invoice and
// analytics consumers. Messages are keyed by event id.
type Forwarder struct {
	writer MessageWriter
	logger *slog.Logger
}

type forwardedMessage struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  5,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewForwarder(writer MessageWriter, logger *slog.Logger) *Forwarder {
	return &Forwarder{writer: writer, logger: logger}
}

// Attach subscribes the forwarder to every event on the bus.
func (f *Forwarder) Attach(bus *EventBus) {
	bus.Subscribe(AllEvents, f.Handle)
}

func (f *Forwarder) Handle(ctx context.Context, event Event) error {
	b, err := json.Marshal(forwardedMessage{
		ID:         event.EventID(),
		Type:       event.EventType(),
		OccurredAt: event.OccurredAt(),
		Payload:    event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID(), err)
	}

	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.EventID()),
		Value:   b,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(event.EventType())}},
	})
	if err != nil {
		return fmt.Errorf("forward event %s: %w", event.EventID(), err)
	}

	f.logger.Debug("event forwarded", "event_type", event.EventType(), "event_id", event.EventID())
	return nil
}

func (f *Forwarder) Close() error {
	return f.writer.Close()
}
