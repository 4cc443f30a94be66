package services

import (
	"context"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

// EventListener turns auction events into messages for connected
// storefront clients.
type EventListener struct {
	broadcaster domain.ProductBroadcaster
	notifier    domain.CustomerNotifier
	log         logger.Logger
}

func NewEventListener(broadcaster domain.ProductBroadcaster, notifier domain.CustomerNotifier,
	log logger.Logger) *EventListener {
	return &EventListener{
		broadcaster: broadcaster,
		notifier:    notifier,
		log:         log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.Subscribe(ctx, el.HandleEvent)
}

func (el *EventListener) HandleEvent(event *domain.AuctionEvent) error {
	el.log.Debug("Handling auction event", "type", event.Type, "product_id", event.ProductID)

	switch event.Type {
	case domain.EventBidPlaced:
		return el.handleBidPlaced(event)
	case domain.EventHighestBidUpdated:
		return el.handleHighestBidUpdated(event)
	case domain.EventAuctionEnded:
		return el.handleAuctionEnded(event)
	case domain.EventAuctionWon:
		return el.handleAuctionWon(event)
	}

	// bid bookkeeping and stock events have no live audience
	return nil
}

func (el *EventListener) handleBidPlaced(event *domain.AuctionEvent) error {
	return el.broadcaster.BroadcastToProduct(context.Background(), event.ProductID, map[string]interface{}{
		"type":        string(domain.EventBidPlaced),
		"product_id":  event.ProductID,
		"bid_id":      event.BidID,
		"customer_id": event.CustomerID,
		"amount":      event.Amount,
		"timestamp":   event.Timestamp,
	})
}

func (el *EventListener) handleHighestBidUpdated(event *domain.AuctionEvent) error {
	return el.broadcaster.BroadcastToProduct(context.Background(), event.ProductID, map[string]interface{}{
		"type":           string(domain.EventHighestBidUpdated),
		"product_id":     event.ProductID,
		"highest_bid":    event.Amount,
		"highest_bidder": event.CustomerID,
		"timestamp":      event.Timestamp,
	})
}

func (el *EventListener) handleAuctionEnded(event *domain.AuctionEvent) error {
	// Final broadcast
	if err := el.broadcaster.BroadcastToProduct(context.Background(), event.ProductID, map[string]interface{}{
		"type":        string(domain.EventAuctionEnded),
		"product_id":  event.ProductID,
		"highest_bid": event.Amount,
		"winner_id":   event.CustomerID,
		"timestamp":   event.Timestamp,
	}); err != nil {
		el.log.Error("Failed to broadcast auction ended event", "error", err)
		return err
	}

	if err := el.broadcaster.CloseProduct(context.Background(), event.ProductID); err != nil {
		el.log.Error("Failed to finalize connections for product", "product_id",
			event.ProductID, "error", err)
		return err
	}
	return nil
}

func (el *EventListener) handleAuctionWon(event *domain.AuctionEvent) error {
	if event.CustomerID == "" {
		return nil
	}
	return el.notifier.NotifyCustomer(context.Background(), event.CustomerID, map[string]interface{}{
		"type":       string(domain.EventAuctionWon),
		"product_id": event.ProductID,
		"bid_id":     event.BidID,
		"amount":     event.Amount,
		"timestamp":  event.Timestamp,
	})
}
