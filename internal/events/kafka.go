// Package events publishes payment lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types published by the payment processor.
const (
	PaymentExecuted  = "payment.executed"
	PaymentFinalized = "payment.finalized"

	EventVersion = "v1"
)

// Envelope is the event schema published on the payments topic.
type Envelope struct {
	EventType    string    `json:"eventType"`
	EventVersion string    `json:"eventVersion"`
	OccurredAt   time.Time `json:"occurredAt"`
	AggregateID  string    `json:"aggregateId"` // order id
	Data         any       `json:"data"`
}

// PaymentEvent is the Data of payment lifecycle envelopes.
type PaymentEvent struct {
	MethodID      string `json:"methodId"`
	Gateway       string `json:"gateway,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	RedirectURL   string `json:"redirectUrl,omitempty"`
}

// Publisher publishes envelopes keyed by key.
type Publisher interface {
	Publish(ctx context.Context, key string, evt Envelope) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes to a single Kafka topic.
type Producer struct {
	w     messageWriter
	topic string
	now   func() time.Time
}

var _ Publisher = (*Producer)(nil)

// NewProducer creates a producer for topic on brokers.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{}, // partition by message key
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
		now:   time.Now,
	}
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error { return p.w.Close() }

// Publish writes evt to the topic. Use the order id as key to keep per-order ordering.
func (p *Producer) Publish(ctx context.Context, key string, evt Envelope) error {
	evt.OccurredAt = p.now().UTC()
	if evt.EventVersion == "" {
		evt.EventVersion = EventVersion
	}
	val, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", evt.EventType, err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: val,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(evt.EventType)},
		},
	})
}

// NopPublisher drops every event.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, string, Envelope) error { return nil }
func (NopPublisher) Close() error                                    { return nil }
