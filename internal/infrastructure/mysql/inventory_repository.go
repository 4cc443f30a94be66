package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-storefront/internal/domain"
)

type MySQLInventoryRepository struct {
	db dbtx
}

func NewMySQLInventoryRepository(db dbtx) *MySQLInventoryRepository {
	return &MySQLInventoryRepository{db: db}
}

func (r *MySQLInventoryRepository) GetInventory(ctx context.Context, productID, warehouseID string) (*domain.Inventory, error) {
	inv, err := r.find(ctx, productID, warehouseID)
	if errors.Is(err, domain.ErrInventoryNotFound) {
		return &domain.Inventory{ProductID: productID, WarehouseID: warehouseID}, nil
	}
	return inv, err
}

func (r *MySQLInventoryRepository) SetStock(ctx context.Context, productID, warehouseID string, stock int) (*domain.Inventory, error) {
	// the stock only changes when it still covers the reserved quantity
	query := `
        INSERT INTO inventory (product_id, warehouse_id, stock_quantity, reserved_quantity, updated_at)
        VALUES (?, ?, ?, 0, ?)
        ON DUPLICATE KEY UPDATE
            stock_quantity = IF(reserved_quantity <= VALUES(stock_quantity), VALUES(stock_quantity), stock_quantity),
            updated_at = VALUES(updated_at)
    `
	if _, err := r.db.ExecContext(ctx, query, productID, warehouseID, stock, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("set stock %s/%s: %w", productID, warehouseID, err)
	}

	inv, err := r.find(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	if inv.StockQuantity != stock {
		return nil, domain.ErrInsufficientStock
	}
	return inv, nil
}

func (r *MySQLInventoryRepository) ApplyDelta(ctx context.Context, productID, warehouseID string, stockDelta, reservedDelta int) (*domain.Inventory, error) {
	query := `
        UPDATE inventory
        SET stock_quantity = stock_quantity + ?, reserved_quantity = reserved_quantity + ?, updated_at = ?
        WHERE product_id = ? AND warehouse_id = ?
            AND stock_quantity + ? >= 0
            AND reserved_quantity + ? >= 0
            AND reserved_quantity + ? <= stock_quantity + ?
    `
	result, err := r.db.ExecContext(ctx, query,
		stockDelta, reservedDelta, time.Now().UTC(), productID, warehouseID,
		stockDelta, reservedDelta, reservedDelta, stockDelta)
	if err != nil {
		return nil, fmt.Errorf("adjust inventory %s/%s: %w", productID, warehouseID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	inv, err := r.find(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.ErrInsufficientStock
	}
	return inv, nil
}

func (r *MySQLInventoryRepository) find(ctx context.Context, productID, warehouseID string) (*domain.Inventory, error) {
	query := `
        SELECT product_id, warehouse_id, stock_quantity, reserved_quantity, updated_at
        FROM inventory WHERE product_id = ? AND warehouse_id = ?
    `
	var inv domain.Inventory
	err := r.db.QueryRowContext(ctx, query, productID, warehouseID).Scan(
		&inv.ProductID, &inv.WarehouseID, &inv.StockQuantity, &inv.ReservedQuantity, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInventoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory %s/%s: %w", productID, warehouseID, err)
	}
	return &inv, nil
}
