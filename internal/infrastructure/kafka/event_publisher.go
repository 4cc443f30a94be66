package kafka

import (
	"context"
	"encoding/json"
	"time"

	"auction-storefront/internal/domain"

	"github.com/segmentio/kafka-go"
)

const eventTypeHeader = "event_type"

// EventPublisher writes auction events to a Kafka topic keyed by product id,
// so the events of one product stay ordered within a partition.
type EventPublisher struct {
	w *kafka.Writer
}

func NewEventPublisher(brokers []string, topic string) *EventPublisher {
	return &EventPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event *domain.AuctionEvent) error {
	msg, err := newMessage(event)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

func (p *EventPublisher) Close() error { return p.w.Close() }

func newMessage(event *domain.AuctionEvent) (kafka.Message, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.ProductID),
		Value: b,
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(event.Type)},
		},
		Time: event.Timestamp,
	}, nil
}
