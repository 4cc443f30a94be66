package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/metrics"
	"auction-storefront/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBidAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 50)

	bid, err := f.service.NewBid(ctx, NewBidRequest{
		Customer:    &domain.Customer{ID: "c1", Registered: true},
		Product:     product,
		Store:       &domain.StoreRef{ID: "s1"},
		Language:    &domain.Language{ID: "en"},
		WarehouseID: "w1",
		Amount:      60,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, bid.ID)
	assert.Equal(t, "s1", bid.StoreID)
	assert.Equal(t, "w1", bid.WarehouseID)

	stored, err := f.service.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, stored.HighestBid)
	assert.Equal(t, "c1", stored.HighestBidder)
	assert.Equal(t, int64(2), stored.Version)

	assert.Equal(t, []domain.AuctionEventType{domain.EventBidPlaced, domain.EventHighestBidUpdated}, f.publisher.Types())
	placed := f.publisher.Last(domain.EventBidPlaced)
	assert.Equal(t, bid.ID, placed.BidID)
	assert.Equal(t, "en", placed.LanguageID)
}

func TestNewBidRejected(t *testing.T) {
	past := baseTime.Add(-time.Minute)

	tests := []struct {
		name    string
		product *domain.Product
		amount  float64
		wantErr error
	}{
		{
			name:    "simple product",
			product: &domain.Product{ID: "p", ProductType: domain.ProductSimple},
			amount:  10,
			wantErr: domain.ErrNotAuction,
		},
		{
			name:    "auction flagged ended",
			product: &domain.Product{ID: "p", ProductType: domain.ProductAuction, AuctionEnded: true},
			amount:  10,
			wantErr: domain.ErrAuctionEnded,
		},
		{
			name:    "end time passed",
			product: &domain.Product{ID: "p", ProductType: domain.ProductAuction, AvailableEndDateTimeUTC: &past},
			amount:  10,
			wantErr: domain.ErrAuctionEnded,
		},
		{
			name:    "not above start price",
			product: &domain.Product{ID: "p", ProductType: domain.ProductAuction, StartPrice: 50},
			amount:  50,
			wantErr: domain.ErrBidTooLow,
		},
		{
			name:    "not above highest bid",
			product: &domain.Product{ID: "p", ProductType: domain.ProductAuction, StartPrice: 10, HighestBid: 70},
			amount:  70,
			wantErr: domain.ErrBidTooLow,
		},
		{
			name:    "zero amount",
			product: &domain.Product{ID: "p", ProductType: domain.ProductAuction},
			amount:  0,
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "fraction of a cent above highest bid",
			product: &domain.Product{ID: "p", ProductType: domain.ProductAuction, HighestBid: 10},
			amount:  10.004,
			wantErr: domain.ErrBidTooLow,
		},
		{
			name:    "rounds to zero",
			product: &domain.Product{ID: "p", ProductType: domain.ProductAuction},
			amount:  0.004,
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.store.Products().CreateProduct(ctx, tt.product))

			_, err := f.service.NewBid(ctx, NewBidRequest{
				Customer: &domain.Customer{ID: "c1", Registered: true},
				Product:  tt.product,
				Amount:   tt.amount,
			})
			assert.ErrorIs(t, err, tt.wantErr)

			bids, err := f.service.GetBidsByProductID(ctx, "p")
			require.NoError(t, err)
			assert.Empty(t, bids)
			assert.Empty(t, f.publisher.Types())
		})
	}
}

func TestNewBidStoresAmountInCents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 10)

	bid := f.bid(t, product, "c1", 10.016)
	assert.Equal(t, 10.02, bid.Amount)

	stored, err := f.store.Products().GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10.02, stored.HighestBid)
	assert.Equal(t, 10.02, f.publisher.Last(domain.EventBidPlaced).Amount)
}

func TestNewBidUnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.NewBid(context.Background(), NewBidRequest{
		Customer: &domain.Customer{ID: "c1"},
		Product:  &domain.Product{ID: "missing"},
		Amount:   10,
	})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestNewBidRetriesOnVersionConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t)
	store := &conflictingStore{Store: f.store, conflicts: 2}
	service := NewAuctionService(store, f.cache, f.publisher, logger.NewNop(),
		WithClock(f.clock.Now), WithMaxBidRetries(5), WithMetrics(metrics.NewRecorder(reg)))
	ctx := context.Background()
	product := f.auction(t, "p1", 0)

	bid, err := service.NewBid(ctx, NewBidRequest{
		Customer: &domain.Customer{ID: "c1"},
		Product:  product,
		Amount:   25,
	})
	require.NoError(t, err)

	bids, err := service.GetBidsByProductID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, bids, 1, "rolled back attempts leave no bids behind")
	assert.Equal(t, bid.ID, bids[0].ID)

	expected := `
# HELP auction_bid_retries_total Bid attempts retried after a concurrent product update.
# TYPE auction_bid_retries_total counter
auction_bid_retries_total 2
# HELP auction_bids_total Bids placed through NewBid by result.
# TYPE auction_bids_total counter
auction_bids_total{result="accepted"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"auction_bid_retries_total", "auction_bids_total"))
}

func TestNewBidSupersededAfterRetries(t *testing.T) {
	f := newFixture(t)
	store := &conflictingStore{Store: f.store, conflicts: 100}
	service := NewAuctionService(store, f.cache, f.publisher, logger.NewNop(),
		WithClock(f.clock.Now), WithMaxBidRetries(3))
	ctx := context.Background()
	product := f.auction(t, "p1", 0)

	_, err := service.NewBid(ctx, NewBidRequest{
		Customer: &domain.Customer{ID: "c1"},
		Product:  product,
		Amount:   25,
	})
	assert.ErrorIs(t, err, domain.ErrBidSuperseded)
	assert.Equal(t, int32(97), store.conflicts)

	stored, err := f.store.Products().GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, stored.HighestBid)

	bids, err := f.store.Bids().GetBidsByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.Empty(t, f.publisher.Types())
}

func TestNewBidConcurrentBidsKeepProjectionConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 0)

	const bidders = 50
	var wg sync.WaitGroup
	errs := make(chan error, bidders)
	for i := 1; i <= bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.NewBid(ctx, NewBidRequest{
				Customer: &domain.Customer{ID: fmt.Sprintf("c%d", i)},
				Product:  product,
				Amount:   float64(i),
			})
			if err != nil && !errors.Is(err, domain.ErrBidTooLow) {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	stored, err := f.service.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, float64(bidders), stored.HighestBid)
	assert.Equal(t, fmt.Sprintf("c%d", bidders), stored.HighestBidder)

	bids, err := f.store.Bids().GetBidsByProductID(ctx, "p1")
	require.NoError(t, err)
	require.NotEmpty(t, bids)
	for i := 1; i < len(bids); i++ {
		assert.Greater(t, bids[i].Amount, bids[i-1].Amount, "accepted bids strictly increase")
	}
	assert.Equal(t, stored.HighestBid, bids[len(bids)-1].Amount)
}

func TestNewBidPublishFailureDoesNotFailBid(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	product := f.auction(t, "p1", 0)

	bid := f.bid(t, product, "c1", 10)
	assert.NotNil(t, bid)
	assert.Len(t, f.publisher.Types(), 2)
}

func TestGetBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 0)
	placed := f.bid(t, product, "c1", 10)

	got, err := f.service.GetBid(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.Amount, got.Amount)

	missing, err := f.service.GetBid(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetBidsAreCachedAndInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 0)
	f.bid(t, product, "c1", 10)

	first, err := f.service.GetBidsByProductID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// a write behind the service's back is not visible while cached
	require.NoError(t, f.store.Bids().InsertBid(ctx, &domain.Bid{ID: "hidden", ProductID: "p1", Amount: 1, Date: baseTime}))
	cached, err := f.service.GetBidsByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	// any bid write through the service drops the cached lists
	f.bid(t, product, "c2", 20)
	fresh, err := f.service.GetBidsByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, fresh, 3)

	byCustomer, err := f.service.GetBidsByCustomerID(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)
	assert.Equal(t, 20.0, byCustomer[0].Amount)
}

func TestCacheFailuresFallBackToStore(t *testing.T) {
	f := newFixture(t)
	service := NewAuctionService(f.store, failingCache{}, f.publisher, logger.NewNop(), WithClock(f.clock.Now))
	ctx := context.Background()
	product := f.auction(t, "p1", 0)

	bid, err := service.NewBid(ctx, NewBidRequest{Customer: &domain.Customer{ID: "c1"}, Product: product, Amount: 5})
	require.NoError(t, err)

	bids, err := service.GetBidsByProductID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, bid.ID, bids[0].ID)
}

func TestGetLatestBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 0)

	none, err := f.service.GetLatestBid(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, none)

	f.bid(t, product, "c1", 10)
	last := f.bid(t, product, "c2", 15)

	latest, err := f.service.GetLatestBid(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, last.ID, latest.ID)
}

func TestInsertBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.auction(t, "p1", 0)

	assert.ErrorIs(t, f.service.InsertBid(ctx, &domain.Bid{ProductID: "p1", Amount: 0}), domain.ErrInvalidAmount)
	assert.ErrorIs(t, f.service.InsertBid(ctx, &domain.Bid{ProductID: "p1", Amount: -3}), domain.ErrInvalidAmount)

	bid := &domain.Bid{ProductID: "p1", CustomerID: "c1", Amount: 500}
	require.NoError(t, f.service.InsertBid(ctx, bid))
	assert.NotEmpty(t, bid.ID)
	assert.False(t, bid.Date.IsZero())

	// inserting directly does not move the projection
	product, err := f.service.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, product.HighestBid)

	assert.Equal(t, []domain.AuctionEventType{domain.EventBidInserted}, f.publisher.Types())
}

func TestUpdateAndDeleteBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 0)
	bid := f.bid(t, product, "c1", 10)
	f.publisher.Reset()

	bid.OrderID = "o1"
	require.NoError(t, f.service.UpdateBid(ctx, bid))
	got, err := f.service.GetBid(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)

	assert.ErrorIs(t, f.service.UpdateBid(ctx, &domain.Bid{ID: "missing", Amount: 1}), domain.ErrBidNotFound)
	assert.ErrorIs(t, f.service.UpdateBid(ctx, &domain.Bid{ID: bid.ID, Amount: 0}), domain.ErrInvalidAmount)

	require.NoError(t, f.service.DeleteBid(ctx, bid))
	gone, err := f.service.GetBid(ctx, bid.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.ErrorIs(t, f.service.DeleteBid(ctx, bid), domain.ErrBidNotFound)
	assert.Equal(t, []domain.AuctionEventType{domain.EventBidUpdated, domain.EventBidDeleted}, f.publisher.Types())
}

func TestUpdateHighestBidOverrides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 0)
	f.bid(t, product, "c1", 60)

	product, err := f.service.GetProduct(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, f.service.UpdateHighestBid(ctx, product, 10, "w1"))
	assert.Equal(t, 10.0, product.HighestBid, "caller's product reflects the stored state")

	stored, err := f.service.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.HighestBid)
	assert.Equal(t, "c1", stored.HighestBidder)

	event := f.publisher.Last(domain.EventHighestBidUpdated)
	require.NotNil(t, event)
	assert.Equal(t, "w1", event.WarehouseID)
	assert.Equal(t, 10.0, event.Amount)

	// a stale product copy still applies because the write re-reads
	stale := &domain.Product{ID: "p1", Version: 1}
	require.NoError(t, f.service.UpdateHighestBid(ctx, stale, 12, ""))
	assert.Equal(t, 12.0, stale.HighestBid)

	assert.ErrorIs(t, f.service.UpdateHighestBid(ctx, &domain.Product{ID: "missing"}, 1, ""), domain.ErrProductNotFound)
	assert.ErrorIs(t, f.service.UpdateHighestBid(ctx, product, -1, ""), domain.ErrInvalidAmount)
}

func TestRefreshHighestBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 5)
	f.bid(t, product, "c1", 10)
	f.bid(t, product, "c2", 30)

	require.NoError(t, f.service.UpdateHighestBid(ctx, product, 1, ""))

	refreshed, err := f.service.RefreshHighestBid(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, refreshed.HighestBid)
	assert.Equal(t, "c2", refreshed.HighestBidder)

	empty := f.auction(t, "p2", 5)
	require.NoError(t, f.service.UpdateHighestBid(ctx, empty, 99, ""))
	refreshed, err = f.service.RefreshHighestBid(ctx, "p2")
	require.NoError(t, err)
	assert.Zero(t, refreshed.HighestBid)
	assert.Equal(t, 5.0, refreshed.CurrentPrice())
}

func TestGetAuctionsToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.auction(t, "p1", 0)

	due, err := f.service.GetAuctionsToEnd(ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	f.clock.Set(baseTime.Add(2 * time.Hour))
	due, err = f.service.GetAuctionsToEnd(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "p1", due[0].ID)
}

func TestUpdateAuctionEnded(t *testing.T) {
	tests := []struct {
		name       string
		bids       []float64
		notify     bool
		wantEvents []domain.AuctionEventType
	}{
		{
			name:       "winner notified",
			bids:       []float64{10, 20},
			notify:     true,
			wantEvents: []domain.AuctionEventType{domain.EventAuctionEnded, domain.EventAuctionWon},
		},
		{
			name:       "winner not notified",
			bids:       []float64{10, 20},
			notify:     false,
			wantEvents: []domain.AuctionEventType{domain.EventAuctionEnded},
		},
		{
			name:       "no bids",
			notify:     true,
			wantEvents: []domain.AuctionEventType{domain.EventAuctionEnded},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			product := f.auction(t, "p1", 0)
			var last *domain.Bid
			for i, amount := range tt.bids {
				last = f.bid(t, product, fmt.Sprintf("c%d", i), amount)
			}
			f.publisher.Reset()

			require.NoError(t, f.service.UpdateAuctionEnded(ctx, product, true, tt.notify))
			assert.True(t, product.AuctionEnded)
			assert.Equal(t, tt.wantEvents, f.publisher.Types())

			if last != nil {
				winner, err := f.service.GetBid(ctx, last.ID)
				require.NoError(t, err)
				assert.True(t, winner.Win)

				if tt.notify {
					won := f.publisher.Last(domain.EventAuctionWon)
					assert.Equal(t, last.CustomerID, won.CustomerID)
					assert.Equal(t, last.ID, won.BidID)
				}
			}

			_, err := f.service.NewBid(ctx, NewBidRequest{
				Customer: &domain.Customer{ID: "late"},
				Product:  product,
				Amount:   1000,
			})
			assert.ErrorIs(t, err, domain.ErrAuctionEnded)
		})
	}
}

func TestUpdateAuctionEndedReopenClearsWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.auction(t, "p1", 0)
	f.bid(t, product, "c1", 10)
	top := f.bid(t, product, "c2", 20)

	require.NoError(t, f.service.UpdateAuctionEnded(ctx, product, true, false))
	winner, err := f.service.GetBid(ctx, top.ID)
	require.NoError(t, err)
	require.True(t, winner.Win)

	require.NoError(t, f.service.UpdateAuctionEnded(ctx, product, false, false))
	assert.False(t, product.AuctionEnded)

	bids, err := f.service.GetBidsByProductID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, bids, 2)
	for _, b := range bids {
		assert.False(t, b.Win, b.ID)
	}

	next := f.bid(t, product, "c3", 30)
	require.NoError(t, f.service.UpdateAuctionEnded(ctx, product, true, true))
	assert.Equal(t, next.ID, f.publisher.Last(domain.EventAuctionWon).BidID)
}

func TestCancelBidByOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.auction(t, "p1", 0)
	p2 := f.auction(t, "p2", 0)

	f.bid(t, p1, "c1", 10)
	top := f.bid(t, p1, "c2", 20)
	other := f.bid(t, p2, "c2", 7)

	for _, b := range []*domain.Bid{top, other} {
		b.OrderID = "o1"
		require.NoError(t, f.service.UpdateBid(ctx, b))
	}
	f.publisher.Reset()

	removed, err := f.service.CancelBidByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	product, err := f.service.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, product.HighestBid)
	assert.Equal(t, "c1", product.HighestBidder)

	product, err = f.service.GetProduct(ctx, "p2")
	require.NoError(t, err)
	assert.Zero(t, product.HighestBid)
	assert.Empty(t, product.HighestBidder)

	remaining, err := f.service.GetBidsByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	types := f.publisher.Types()
	assert.Len(t, types, 4)
	assert.Equal(t, domain.EventBidDeleted, types[0])

	removed, err = f.service.CancelBidByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = f.service.CancelBidByOrder(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.service.CreateProduct(ctx, &domain.Product{ProductType: "bundle"}), domain.ErrInvalidProduct)
	assert.ErrorIs(t, f.service.CreateProduct(ctx, &domain.Product{ProductType: domain.ProductAuction, StartPrice: -1}), domain.ErrInvalidAmount)

	p := &domain.Product{ProductType: domain.ProductSimple, Name: "Chair"}
	require.NoError(t, f.service.CreateProduct(ctx, p))
	assert.True(t, strings.HasPrefix(p.ID, "product-"))
}
