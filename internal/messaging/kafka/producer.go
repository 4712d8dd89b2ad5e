package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// MessageWriter is the subset of *kafkago.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// EventProducer writes committed events to a topic as JSON.
type EventProducer struct {
	w MessageWriter
}

// NewEventProducer wraps w.
func NewEventProducer(w MessageWriter) *EventProducer {
	return &EventProducer{w: w}
}

// Publish writes one event. Events touching a market are keyed by it so a
// partition sees them in order.
func (p *EventProducer) Publish(ctx context.Context, evt domain.Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: marshal event %s: %w", evt.Type, err)
	}
	msg := kafkago.Message{
		Key:   []byte(eventKey(evt)),
		Value: b,
		Time:  evt.At,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write event %s: %w", evt.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *EventProducer) Close() error {
	return p.w.Close()
}

func eventKey(evt domain.Event) string {
	for _, field := range []string{"market", "ticket", "pool"} {
		if v, ok := evt.Payload[field].(string); ok && v != "" {
			return v
		}
	}
	return string(evt.Type)
}

var _ domain.EventSink = (*EventProducer)(nil)
