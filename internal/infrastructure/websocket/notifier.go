package websocket

import (
	"context"

	"auction-storefront/internal/domain"
)

// WebSocketNotifier delivers listener messages to the connection manager.
type WebSocketNotifier struct {
	connManager domain.ConnectionManager
}

func NewWebSocketNotifier(connManager domain.ConnectionManager) *WebSocketNotifier {
	return &WebSocketNotifier{connManager: connManager}
}

func (n *WebSocketNotifier) NotifyCustomer(ctx context.Context, customerID string, message interface{}) error {
	return n.connManager.NotifyCustomer(customerID, message)
}

func (n *WebSocketNotifier) BroadcastToProduct(ctx context.Context, productID string, message interface{}) error {
	return n.connManager.BroadcastToProduct(productID, message)
}

func (n *WebSocketNotifier) CloseProduct(ctx context.Context, productID string) error {
	return n.connManager.CloseAndUnregisterConnections(productID)
}
