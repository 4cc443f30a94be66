package services

import (
	"context"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/metrics"
	"auction-storefront/pkg/logger"
)

// Inventory adjustment kinds, used for metrics and logs.
const (
	StockSet     = "set"
	StockReserve = "reserve"
	StockRelease = "release"
	StockBook    = "book"
	StockAdjust  = "adjust"
)

// InventoryService keeps per-warehouse stock and reservations. Every change
// is a single guarded delta in the store, never a read-modify-write.
type InventoryService struct {
	store    domain.Store
	eventPub domain.EventPublisher
	metrics  *metrics.Recorder
	log      logger.Logger
	now      func() time.Time
}

func NewInventoryService(store domain.Store, eventPub domain.EventPublisher, recorder *metrics.Recorder,
	log logger.Logger) *InventoryService {
	return &InventoryService{
		store:    store,
		eventPub: eventPub,
		metrics:  recorder,
		log:      log,
		now:      time.Now,
	}
}

func (s *InventoryService) GetInventory(ctx context.Context, productID, warehouseID string) (*domain.Inventory, error) {
	return s.store.Inventory().GetInventory(ctx, productID, warehouseID)
}

func (s *InventoryService) SetStock(ctx context.Context, productID, warehouseID string, stock int) (*domain.Inventory, error) {
	if stock < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if _, err := s.store.Products().GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	inv, err := s.store.Inventory().SetStock(ctx, productID, warehouseID, stock)
	if err != nil {
		return nil, err
	}

	s.changed(ctx, StockSet, inv, stock)
	return inv, nil
}

// ReserveStock holds quantity units for a pending order.
func (s *InventoryService) ReserveStock(ctx context.Context, productID, warehouseID string, quantity int) (*domain.Inventory, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	return s.apply(ctx, StockReserve, productID, warehouseID, 0, quantity, quantity)
}

// ReleaseReservedStock returns reserved units to the available pool.
func (s *InventoryService) ReleaseReservedStock(ctx context.Context, productID, warehouseID string, quantity int) (*domain.Inventory, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	return s.apply(ctx, StockRelease, productID, warehouseID, 0, -quantity, quantity)
}

// BookReservedStock ships reserved units: they leave both the stock and the
// reservation.
func (s *InventoryService) BookReservedStock(ctx context.Context, productID, warehouseID string, quantity int) (*domain.Inventory, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	return s.apply(ctx, StockBook, productID, warehouseID, -quantity, -quantity, quantity)
}

// AdjustStock adds delta (which may be negative) to the stock.
func (s *InventoryService) AdjustStock(ctx context.Context, productID, warehouseID string, delta int) (*domain.Inventory, error) {
	if delta == 0 {
		return nil, domain.ErrInvalidQuantity
	}
	return s.apply(ctx, StockAdjust, productID, warehouseID, delta, 0, delta)
}

func (s *InventoryService) apply(ctx context.Context, kind, productID, warehouseID string,
	stockDelta, reservedDelta, quantity int) (*domain.Inventory, error) {
	inv, err := s.store.Inventory().ApplyDelta(ctx, productID, warehouseID, stockDelta, reservedDelta)
	if err != nil {
		s.log.Info("Inventory change rejected", "kind", kind, "product_id", productID,
			"warehouse_id", warehouseID, "quantity", quantity, "reason", err)
		return nil, err
	}

	s.changed(ctx, kind, inv, quantity)
	return inv, nil
}

func (s *InventoryService) changed(ctx context.Context, kind string, inv *domain.Inventory, quantity int) {
	s.metrics.StockAdjusted(kind)
	s.log.Info("Inventory changed", "kind", kind, "product_id", inv.ProductID, "warehouse_id", inv.WarehouseID,
		"stock", inv.StockQuantity, "reserved", inv.ReservedQuantity)

	if s.eventPub == nil {
		return
	}
	event := &domain.AuctionEvent{
		Type:        domain.EventStockChanged,
		ProductID:   inv.ProductID,
		WarehouseID: inv.WarehouseID,
		Quantity:    quantity,
		Timestamp:   s.now().UTC(),
	}
	if err := s.eventPub.Publish(ctx, event); err != nil {
		s.metrics.PublishFailed(string(event.Type))
		s.log.Warn("Failed to publish auction event", "type", event.Type, "product_id", event.ProductID, "error", err)
	}
}
