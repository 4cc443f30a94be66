package memory

import (
	"context"
	"time"

	"auction-storefront/internal/domain"
)

type InventoryRepository struct {
	access accessor
	clock  func() time.Time
}

func inventoryKey(productID, warehouseID string) string {
	return productID + "/" + warehouseID
}

func (r *InventoryRepository) GetInventory(ctx context.Context, productID, warehouseID string) (*domain.Inventory, error) {
	var inv *domain.Inventory
	err := r.access(func(d *data) error {
		if stored, ok := d.inventory[inventoryKey(productID, warehouseID)]; ok {
			inv = cloneInventory(stored)
			return nil
		}
		inv = &domain.Inventory{ProductID: productID, WarehouseID: warehouseID}
		return nil
	})
	return inv, err
}

func (r *InventoryRepository) SetStock(ctx context.Context, productID, warehouseID string, stock int) (*domain.Inventory, error) {
	var inv *domain.Inventory
	err := r.access(func(d *data) error {
		key := inventoryKey(productID, warehouseID)
		stored, ok := d.inventory[key]
		if !ok {
			stored = &domain.Inventory{ProductID: productID, WarehouseID: warehouseID}
		}
		if stock < stored.ReservedQuantity {
			return domain.ErrInsufficientStock
		}
		d.inventory[key] = stored
		stored.StockQuantity = stock
		stored.UpdatedAt = r.clock().UTC()
		inv = cloneInventory(stored)
		return nil
	})
	return inv, err
}

func (r *InventoryRepository) ApplyDelta(ctx context.Context, productID, warehouseID string, stockDelta, reservedDelta int) (*domain.Inventory, error) {
	var inv *domain.Inventory
	err := r.access(func(d *data) error {
		stored, ok := d.inventory[inventoryKey(productID, warehouseID)]
		if !ok {
			return domain.ErrInventoryNotFound
		}
		stock := stored.StockQuantity + stockDelta
		reserved := stored.ReservedQuantity + reservedDelta
		if stock < 0 || reserved < 0 || reserved > stock {
			return domain.ErrInsufficientStock
		}
		stored.StockQuantity = stock
		stored.ReservedQuantity = reserved
		stored.UpdatedAt = r.clock().UTC()
		inv = cloneInventory(stored)
		return nil
	})
	return inv, err
}

func cloneInventory(inv *domain.Inventory) *domain.Inventory {
	if inv == nil {
		return nil
	}
	clone := *inv
	return &clone
}
