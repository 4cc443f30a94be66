package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-storefront/internal/domain"
)

const bidColumns = `id, product_id, customer_id, store_id, warehouse_id, order_id, amount, date, win`

type MySQLBidRepository struct {
	db dbtx
}

func NewMySQLBidRepository(db dbtx) *MySQLBidRepository {
	return &MySQLBidRepository{db: db}
}

func (r *MySQLBidRepository) GetBid(ctx context.Context, id string) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = ?`

	bid, err := scanBid(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBidNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bid %s: %w", id, err)
	}
	return bid, nil
}

func (r *MySQLBidRepository) GetLatestBid(ctx context.Context, productID string) (*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids WHERE product_id = ?
        ORDER BY date DESC, id DESC
        LIMIT 1
    `
	return r.queryOne(ctx, query, productID)
}

func (r *MySQLBidRepository) GetHighestBid(ctx context.Context, productID string) (*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids WHERE product_id = ?
        ORDER BY amount DESC, date ASC, id ASC
        LIMIT 1
    `
	return r.queryOne(ctx, query, productID)
}

func (r *MySQLBidRepository) GetBidsByProductID(ctx context.Context, productID string) ([]*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids WHERE product_id = ?
        ORDER BY date ASC, id ASC
    `
	return r.queryMany(ctx, query, productID)
}

func (r *MySQLBidRepository) GetBidsByCustomerID(ctx context.Context, customerID string) ([]*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids WHERE customer_id = ?
        ORDER BY date ASC, id ASC
    `
	return r.queryMany(ctx, query, customerID)
}

func (r *MySQLBidRepository) GetBidsByOrderID(ctx context.Context, orderID string) ([]*domain.Bid, error) {
	if orderID == "" {
		return []*domain.Bid{}, nil
	}
	query := `
        SELECT ` + bidColumns + `
        FROM bids WHERE order_id = ?
        ORDER BY date ASC, id ASC
    `
	return r.queryMany(ctx, query, orderID)
}

func (r *MySQLBidRepository) InsertBid(ctx context.Context, bid *domain.Bid) error {
	query := `
        INSERT INTO bids (id, product_id, customer_id, store_id, warehouse_id, order_id, amount, date, win)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		bid.ID, bid.ProductID, bid.CustomerID, bid.StoreID, bid.WarehouseID,
		bid.OrderID, bid.Amount, bid.Date, bid.Win)
	if isDuplicateKey(err) {
		return fmt.Errorf("insert bid %s: %w", bid.ID, domain.ErrBidExists)
	}
	if err != nil {
		return fmt.Errorf("insert bid %s: %w", bid.ID, err)
	}
	return nil
}

func (r *MySQLBidRepository) UpdateBid(ctx context.Context, bid *domain.Bid) error {
	query := `
        UPDATE bids
        SET product_id = ?, customer_id = ?, store_id = ?, warehouse_id = ?, order_id = ?,
            amount = ?, date = ?, win = ?
        WHERE id = ?
    `
	result, err := r.db.ExecContext(ctx, query,
		bid.ProductID, bid.CustomerID, bid.StoreID, bid.WarehouseID, bid.OrderID,
		bid.Amount, bid.Date, bid.Win, bid.ID)
	if err != nil {
		return fmt.Errorf("update bid %s: %w", bid.ID, err)
	}
	return r.requireRow(ctx, result, bid.ID)
}

func (r *MySQLBidRepository) DeleteBid(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bids WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete bid %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrBidNotFound
	}
	return nil
}

func (r *MySQLBidRepository) DeleteBidsByOrderID(ctx context.Context, orderID string) (int64, error) {
	if orderID == "" {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM bids WHERE order_id = ?`, orderID)
	if err != nil {
		return 0, fmt.Errorf("delete bids of order %s: %w", orderID, err)
	}
	return result.RowsAffected()
}

// requireRow maps an UPDATE that touched no row to ErrBidNotFound. MySQL
// reports zero affected rows for unchanged values too, so existence is
// checked before giving up.
func (r *MySQLBidRepository) requireRow(ctx context.Context, result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bids WHERE id = ?`, id).Scan(&count); err != nil {
		return fmt.Errorf("check bid %s: %w", id, err)
	}
	if count == 0 {
		return domain.ErrBidNotFound
	}
	return nil
}

func (r *MySQLBidRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*domain.Bid, error) {
	bid, err := scanBid(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func (r *MySQLBidRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*domain.Bid, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bids := []*domain.Bid{}
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}

	return bids, rows.Err()
}

func scanBid(row scanner) (*domain.Bid, error) {
	var bid domain.Bid
	err := row.Scan(&bid.ID, &bid.ProductID, &bid.CustomerID, &bid.StoreID,
		&bid.WarehouseID, &bid.OrderID, &bid.Amount, &bid.Date, &bid.Win)
	if err != nil {
		return nil, err
	}
	bid.Date = bid.Date.UTC()
	return &bid, nil
}
