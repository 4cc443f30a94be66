package domain

import (
	"context"
	"time"
)

// Repository interfaces

type BidRepository interface {
	// GetBid returns ErrBidNotFound when id is unknown.
	GetBid(ctx context.Context, id string) (*Bid, error)
	// GetLatestBid returns nil when the product has no bids.
	GetLatestBid(ctx context.Context, productID string) (*Bid, error)
	// GetHighestBid returns nil when the product has no bids. Equal amounts
	// resolve to the earliest bid.
	GetHighestBid(ctx context.Context, productID string) (*Bid, error)
	GetBidsByProductID(ctx context.Context, productID string) ([]*Bid, error)
	GetBidsByCustomerID(ctx context.Context, customerID string) ([]*Bid, error)
	GetBidsByOrderID(ctx context.Context, orderID string) ([]*Bid, error)
	InsertBid(ctx context.Context, bid *Bid) error
	UpdateBid(ctx context.Context, bid *Bid) error
	DeleteBid(ctx context.Context, id string) error
	DeleteBidsByOrderID(ctx context.Context, orderID string) (int64, error)
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, product *Product) error
	// GetProduct returns ErrProductNotFound when id is unknown.
	GetProduct(ctx context.Context, id string) (*Product, error)
	// UpdateProduct writes product only if the stored version still equals
	// product.Version, then bumps product.Version. A mismatch returns
	// ErrVersionConflict.
	UpdateProduct(ctx context.Context, product *Product) error
	GetAuctionsToEnd(ctx context.Context, now time.Time) ([]*Product, error)
}

type InventoryRepository interface {
	// GetInventory returns a zero-quantity record when none is stored.
	GetInventory(ctx context.Context, productID, warehouseID string) (*Inventory, error)
	SetStock(ctx context.Context, productID, warehouseID string, stock int) (*Inventory, error)
	// ApplyDelta adds the deltas in a single guarded write. It returns
	// ErrInsufficientStock when the result would break
	// 0 <= reserved <= stock, and ErrInventoryNotFound for unknown rows.
	ApplyDelta(ctx context.Context, productID, warehouseID string, stockDelta, reservedDelta int) (*Inventory, error)
}

// Store groups the repositories that must change together.
type Store interface {
	Bids() BidRepository
	Products() ProductRepository
	Inventory() InventoryRepository
	// WithinTx runs fn against a transactional view of the store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Cache interface
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	RemoveByPrefix(ctx context.Context, prefix string) error
}

type BidRulesStore interface {
	LoadRules(ctx context.Context) (*BidValidationRules, error)
	SaveRules(ctx context.Context, rules *BidValidationRules) error
}

// Event interfaces
type EventPublisher interface {
	Publish(ctx context.Context, event *AuctionEvent) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *AuctionEvent) error

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// Notification interfaces
type CustomerNotifier interface {
	NotifyCustomer(ctx context.Context, customerID string, message interface{}) error
}

type ProductBroadcaster interface {
	BroadcastToProduct(ctx context.Context, productID string, message interface{}) error
	CloseProduct(ctx context.Context, productID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	CustomerID() string
	ProductID() string
}

type ConnectionManager interface {
	RegisterConnection(customerID, productID string, conn WebSocketConnection) error
	UnregisterConnection(conn WebSocketConnection) error
	GetConnectionsForProduct(productID string) []WebSocketConnection
	GetConnectionsForCustomer(customerID string) []WebSocketConnection
	BroadcastToProduct(productID string, message interface{}) error
	NotifyCustomer(customerID string, message interface{}) error
	CloseAndUnregisterConnections(productID string) error
}
