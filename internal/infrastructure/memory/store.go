package memory

import (
	"context"
	"sync"
	"time"

	"auction-storefront/internal/domain"
)

type data struct {
	bids      map[string]*domain.Bid
	products  map[string]*domain.Product
	inventory map[string]*domain.Inventory
}

func newData() *data {
	return &data{
		bids:      make(map[string]*domain.Bid),
		products:  make(map[string]*domain.Product),
		inventory: make(map[string]*domain.Inventory),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.bids {
		c.bids[k] = cloneBid(v)
	}
	for k, v := range d.products {
		c.products[k] = cloneProduct(v)
	}
	for k, v := range d.inventory {
		c.inventory[k] = cloneInventory(v)
	}
	return c
}

// accessor runs fn with exclusive access to the backing data.
type accessor func(fn func(d *data) error) error

// Store is a process-local domain.Store. Transactions hold the store lock
// for their whole duration and work on a copy that replaces the live data
// only on success.
type Store struct {
	mu    sync.Mutex
	data  *data
	clock func() time.Time
}

func NewStore() *Store {
	return &Store{
		data:  newData(),
		clock: time.Now,
	}
}

func (s *Store) access(fn func(d *data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) Bids() domain.BidRepository {
	return &BidRepository{access: s.access}
}

func (s *Store) Products() domain.ProductRepository {
	return &ProductRepository{access: s.access, clock: s.clock}
}

func (s *Store) Inventory() domain.InventoryRepository {
	return &InventoryRepository{access: s.access, clock: s.clock}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &txStore{data: s.data.clone(), clock: s.clock}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

type txStore struct {
	data  *data
	clock func() time.Time
}

func (t *txStore) access(fn func(d *data) error) error {
	return fn(t.data)
}

func (t *txStore) Bids() domain.BidRepository {
	return &BidRepository{access: t.access}
}

func (t *txStore) Products() domain.ProductRepository {
	return &ProductRepository{access: t.access, clock: t.clock}
}

func (t *txStore) Inventory() domain.InventoryRepository {
	return &InventoryRepository{access: t.access, clock: t.clock}
}

// WithinTx on a transactional view joins the running transaction.
func (t *txStore) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	return fn(t)
}
