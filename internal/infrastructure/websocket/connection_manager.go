package websocket

import (
	"encoding/json"
	"sync"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

// ConnectionManager tracks live connections by product and by customer. A
// customer holds at most one connection per product; registering a second
// one closes the first.
type ConnectionManager struct {
	connections   map[string]map[string]domain.WebSocketConnection // productID -> customerID -> connection
	customerConns map[string][]domain.WebSocketConnection          // customerID -> connections
	mutex         sync.RWMutex
	log           logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections:   make(map[string]map[string]domain.WebSocketConnection),
		customerConns: make(map[string][]domain.WebSocketConnection),
		log:           log,
	}
}

func (cm *ConnectionManager) RegisterConnection(customerID, productID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[productID] == nil {
		cm.connections[productID] = make(map[string]domain.WebSocketConnection)
	}
	if previous, ok := cm.connections[productID][customerID]; ok && previous != conn {
		cm.removeCustomerConn(previous)
		if err := previous.Close(); err != nil {
			cm.log.Warn("Failed to close replaced connection", "customer_id", customerID,
				"product_id", productID, "error", err)
		}
	}
	cm.connections[productID][customerID] = conn
	cm.customerConns[customerID] = append(cm.customerConns[customerID], conn)

	cm.log.Info("Connection registered", "customer_id", customerID, "product_id", productID)
	return nil
}

// UnregisterConnection forgets conn. A connection that was already replaced
// or closed is ignored.
func (cm *ConnectionManager) UnregisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	productID, customerID := conn.ProductID(), conn.CustomerID()
	if productConns, exists := cm.connections[productID]; exists && productConns[customerID] == conn {
		delete(productConns, customerID)
		if len(productConns) == 0 {
			delete(cm.connections, productID)
		}
	}
	cm.removeCustomerConn(conn)

	cm.log.Info("Connection unregistered", "customer_id", customerID, "product_id", productID)
	return nil
}

func (cm *ConnectionManager) removeCustomerConn(conn domain.WebSocketConnection) {
	customerID := conn.CustomerID()
	existing, ok := cm.customerConns[customerID]
	if !ok {
		return
	}

	var kept []domain.WebSocketConnection
	for _, c := range existing {
		if c != conn {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(cm.customerConns, customerID)
	} else {
		cm.customerConns[customerID] = kept
	}
}

// CloseAndUnregisterConnections closes every connection watching productID.
func (cm *ConnectionManager) CloseAndUnregisterConnections(productID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	productConns, exists := cm.connections[productID]
	if !exists {
		return nil
	}

	for customerID, conn := range productConns {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "customer_id", customerID,
				"product_id", productID, "error", err)
		}
		cm.removeCustomerConn(conn)
	}
	delete(cm.connections, productID)

	cm.log.Info("Connections closed for product", "product_id", productID, "count", len(productConns))
	return nil
}

func (cm *ConnectionManager) GetConnectionsForProduct(productID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.WebSocketConnection
	for _, conn := range cm.connections[productID] {
		connections = append(connections, conn)
	}
	return connections
}

func (cm *ConnectionManager) GetConnectionsForCustomer(customerID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return append([]domain.WebSocketConnection(nil), cm.customerConns[customerID]...)
}

func (cm *ConnectionManager) BroadcastToProduct(productID string, message interface{}) error {
	connections := cm.GetConnectionsForProduct(productID)
	if len(connections) == 0 {
		return nil
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	sent := 0
	for _, conn := range connections {
		if err := conn.Send(json.RawMessage(payload)); err != nil {
			// Continue to other connections
			cm.log.Warn("Failed to send message", "customer_id", conn.CustomerID(),
				"product_id", productID, "error", err)
			continue
		}
		sent++
	}

	cm.log.Debug("Broadcast to product", "product_id", productID, "connections", len(connections), "sent", sent)
	return nil
}

func (cm *ConnectionManager) NotifyCustomer(customerID string, message interface{}) error {
	connections := cm.GetConnectionsForCustomer(customerID)
	if len(connections) == 0 {
		cm.log.Debug("No connections for customer", "customer_id", customerID)
		return nil
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	for _, conn := range connections {
		if err := conn.Send(json.RawMessage(payload)); err != nil {
			cm.log.Warn("Failed to send message", "customer_id", customerID, "error", err)
		}
	}
	return nil
}
