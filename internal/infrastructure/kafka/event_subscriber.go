package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type EventSubscriber struct {
	r   *kafka.Reader
	log logger.Logger
}

func NewEventSubscriber(brokers []string, topic, groupID string, log logger.Logger) *EventSubscriber {
	return &EventSubscriber{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		log: log,
	}
}

func (s *EventSubscriber) Close() error { return s.r.Close() }

// Subscribe reads events until ctx is done. Undecodable messages and handler
// errors are logged and skipped.
func (s *EventSubscriber) Subscribe(ctx context.Context, handler domain.EventHandler) error {
	s.log.Info("Subscribed to auction events", "topic", s.r.Config().Topic)

	for {
		m, err := s.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("Event subscriber stopped")
				return ctx.Err()
			}
			return fmt.Errorf("read auction event: %w", err)
		}

		event, err := decodeMessage(m)
		if err != nil {
			s.log.Error("Failed to decode event", "offset", m.Offset, "error", err)
			continue
		}

		if err := handler(event); err != nil {
			s.log.Error("Failed to handle event", "type", event.Type, "product_id", event.ProductID, "error", err)
		}
	}
}

func decodeMessage(m kafka.Message) (*domain.AuctionEvent, error) {
	var event domain.AuctionEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return nil, err
	}
	if event.Type == "" {
		for _, h := range m.Headers {
			if h.Key == eventTypeHeader {
				event.Type = domain.AuctionEventType(h.Value)
			}
		}
	}
	if event.Type == "" || event.ProductID == "" {
		return nil, fmt.Errorf("event missing type or product id")
	}
	return &event, nil
}
