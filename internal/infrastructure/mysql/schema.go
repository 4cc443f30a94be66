package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
        id VARCHAR(64) NOT NULL PRIMARY KEY,
        name VARCHAR(255) NOT NULL DEFAULT '',
        product_type VARCHAR(16) NOT NULL,
        start_price DECIMAL(18,2) NOT NULL DEFAULT 0,
        highest_bid DECIMAL(18,2) NOT NULL DEFAULT 0,
        highest_bidder VARCHAR(64) NOT NULL DEFAULT '',
        available_end_date_time_utc DATETIME(6) NULL,
        auction_ended BOOLEAN NOT NULL DEFAULT FALSE,
        version BIGINT NOT NULL DEFAULT 1,
        updated_at DATETIME(6) NOT NULL,
        INDEX idx_products_auction_end (product_type, auction_ended, available_end_date_time_utc)
    )`,
	`CREATE TABLE IF NOT EXISTS bids (
        id VARCHAR(64) NOT NULL PRIMARY KEY,
        product_id VARCHAR(64) NOT NULL,
        customer_id VARCHAR(64) NOT NULL,
        store_id VARCHAR(64) NOT NULL DEFAULT '',
        warehouse_id VARCHAR(64) NOT NULL DEFAULT '',
        order_id VARCHAR(64) NOT NULL DEFAULT '',
        amount DECIMAL(18,2) NOT NULL,
        date DATETIME(6) NOT NULL,
        win BOOLEAN NOT NULL DEFAULT FALSE,
        INDEX idx_bids_product_date (product_id, date),
        INDEX idx_bids_customer (customer_id),
        INDEX idx_bids_order (order_id)
    )`,
	`CREATE TABLE IF NOT EXISTS inventory (
        product_id VARCHAR(64) NOT NULL,
        warehouse_id VARCHAR(64) NOT NULL,
        stock_quantity INT NOT NULL DEFAULT 0,
        reserved_quantity INT NOT NULL DEFAULT 0,
        updated_at DATETIME(6) NOT NULL,
        PRIMARY KEY (product_id, warehouse_id)
    )`,
}

// Migrate creates the tables the repositories expect when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
