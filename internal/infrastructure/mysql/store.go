package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-storefront/internal/domain"

	driver "github.com/go-sql-driver/mysql"
)

// dbtx is the subset of *sql.DB and *sql.Tx the repositories need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const errDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var myErr *driver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDuplicateEntry
}

type scanner interface {
	Scan(dest ...interface{}) error
}

type Store struct {
	db   *sql.DB
	q    dbtx
	inTx bool
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Bids() domain.BidRepository {
	return NewMySQLBidRepository(s.q)
}

func (s *Store) Products() domain.ProductRepository {
	return NewMySQLProductRepository(s.q)
}

func (s *Store) Inventory() domain.InventoryRepository {
	return NewMySQLInventoryRepository(s.q)
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{db: s.db, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
