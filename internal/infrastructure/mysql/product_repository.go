package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-storefront/internal/domain"
)

const productColumns = `id, name, product_type, start_price, highest_bid, highest_bidder,
        available_end_date_time_utc, auction_ended, version, updated_at`

type MySQLProductRepository struct {
	db dbtx
}

func NewMySQLProductRepository(db dbtx) *MySQLProductRepository {
	return &MySQLProductRepository{db: db}
}

func (r *MySQLProductRepository) CreateProduct(ctx context.Context, product *domain.Product) error {
	query := `
        INSERT INTO products (id, name, product_type, start_price, highest_bid, highest_bidder,
            available_end_date_time_utc, auction_ended, version, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	product.Version = 1
	product.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		product.ID, product.Name, string(product.ProductType), product.StartPrice,
		product.HighestBid, product.HighestBidder, nullTime(product.AvailableEndDateTimeUTC),
		product.AuctionEnded, product.Version, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product %s: %w", product.ID, err)
	}
	return nil
}

func (r *MySQLProductRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return product, nil
}

func (r *MySQLProductRepository) UpdateProduct(ctx context.Context, product *domain.Product) error {
	query := `
        UPDATE products
        SET name = ?, product_type = ?, start_price = ?, highest_bid = ?, highest_bidder = ?,
            available_end_date_time_utc = ?, auction_ended = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?
    `
	updatedAt := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		product.Name, string(product.ProductType), product.StartPrice, product.HighestBid,
		product.HighestBidder, nullTime(product.AvailableEndDateTimeUTC), product.AuctionEnded,
		updatedAt, product.ID, product.Version)
	if err != nil {
		return fmt.Errorf("update product %s: %w", product.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var count int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE id = ?`, product.ID).Scan(&count); err != nil {
			return fmt.Errorf("check product %s: %w", product.ID, err)
		}
		if count == 0 {
			return domain.ErrProductNotFound
		}
		return domain.ErrVersionConflict
	}

	product.Version++
	product.UpdatedAt = updatedAt
	return nil
}

func (r *MySQLProductRepository) GetAuctionsToEnd(ctx context.Context, now time.Time) ([]*domain.Product, error) {
	query := `
        SELECT ` + productColumns + `
        FROM products
        WHERE product_type = ? AND auction_ended = FALSE
            AND available_end_date_time_utc IS NOT NULL AND available_end_date_time_utc < ?
        ORDER BY available_end_date_time_utc ASC
    `

	rows, err := r.db.QueryContext(ctx, query, string(domain.ProductAuction), now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	return products, rows.Err()
}

func scanProduct(row scanner) (*domain.Product, error) {
	var product domain.Product
	var productType string
	var endDate sql.NullTime

	err := row.Scan(&product.ID, &product.Name, &productType, &product.StartPrice,
		&product.HighestBid, &product.HighestBidder, &endDate, &product.AuctionEnded,
		&product.Version, &product.UpdatedAt)
	if err != nil {
		return nil, err
	}

	product.ProductType = domain.ProductType(productType)
	if endDate.Valid {
		end := endDate.Time.UTC()
		product.AvailableEndDateTimeUTC = &end
	}
	return &product, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
