package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/memory"
	"auction-storefront/pkg/logger"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// testClock advances one second on every reading so bids get distinct dates.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.AuctionEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event *domain.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := *event
	p.events = append(p.events, &copied)
	return p.err
}

func (p *recordingPublisher) Types() []domain.AuctionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]domain.AuctionEventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

func (p *recordingPublisher) Last(eventType domain.AuctionEventType) *domain.AuctionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == eventType {
			return p.events[i]
		}
	}
	return nil
}

func (p *recordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// conflictingStore fails the next n product writes made inside transactions
// with ErrVersionConflict, as if another writer got there first.
type conflictingStore struct {
	domain.Store
	conflicts int32
}

func (s *conflictingStore) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx domain.Store) error {
		return fn(&conflictingTx{Store: tx, parent: s})
	})
}

type conflictingTx struct {
	domain.Store
	parent *conflictingStore
}

func (t *conflictingTx) Products() domain.ProductRepository {
	return &conflictingProducts{ProductRepository: t.Store.Products(), parent: t.parent}
}

type conflictingProducts struct {
	domain.ProductRepository
	parent *conflictingStore
}

func (p *conflictingProducts) UpdateProduct(ctx context.Context, product *domain.Product) error {
	if atomic.AddInt32(&p.parent.conflicts, -1) >= 0 {
		return domain.ErrVersionConflict
	}
	return p.ProductRepository.UpdateProduct(ctx, product)
}

type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, errCacheDown
}

func (failingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return errCacheDown
}

func (failingCache) RemoveByPrefix(ctx context.Context, prefix string) error {
	return errCacheDown
}

type fixture struct {
	store     *memory.Store
	cache     *memory.Cache
	publisher *recordingPublisher
	clock     *testClock
	service   *AuctionService
}

func newFixture(t *testing.T, opts ...AuctionServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		cache:     memory.NewCache(),
		publisher: &recordingPublisher{},
		clock:     newTestClock(),
	}
	opts = append([]AuctionServiceOption{WithClock(f.clock.Now)}, opts...)
	f.service = NewAuctionService(f.store, f.cache, f.publisher, logger.NewNop(), opts...)
	return f
}

func (f *fixture) auction(t *testing.T, id string, startPrice float64) *domain.Product {
	t.Helper()
	end := baseTime.Add(time.Hour)
	p := &domain.Product{
		ID:                      id,
		Name:                    "Lot " + id,
		ProductType:             domain.ProductAuction,
		StartPrice:              startPrice,
		AvailableEndDateTimeUTC: &end,
	}
	require.NoError(t, f.service.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) bid(t *testing.T, product *domain.Product, customerID string, amount float64) *domain.Bid {
	t.Helper()
	bid, err := f.service.NewBid(context.Background(), NewBidRequest{
		Customer: &domain.Customer{ID: customerID, Registered: true},
		Product:  product,
		Amount:   amount,
	})
	require.NoError(t, err)
	return bid
}
