package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRulesStore struct {
	rules *domain.BidValidationRules
	err   error
	loads int
}

func (s *stubRulesStore) LoadRules(ctx context.Context) (*domain.BidValidationRules, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

func (s *stubRulesStore) SaveRules(ctx context.Context, rules *domain.BidValidationRules) error {
	s.rules = rules
	return nil
}

func newTestValidator(store domain.BidRulesStore) *BidValidator {
	v := NewBidValidator(store, logger.NewNop())
	v.now = func() time.Time { return baseTime }
	return v
}

func TestGetIncrementRule(t *testing.T) {
	v := newTestValidator(&stubRulesStore{rules: &domain.BidValidationRules{
		Rules: map[string]float64{"0-100": 1, "100-500": 2},
	}})
	require.NoError(t, v.LoadRules(context.Background()))

	tests := []struct {
		amount float64
		want   float64
	}{
		{0, 1},
		{99.99, 1},
		{100, 2},
		{499, 2},
		{500, 25}, // missing tier falls back to the default
		{10000, 25},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, v.GetIncrementRule(tt.amount), "amount %.2f", tt.amount)
	}
	assert.Equal(t, 102.0, v.GetMinimumBid(100))
}

func TestBidValidatorValidate(t *testing.T) {
	end := baseTime.Add(time.Hour)
	past := baseTime.Add(-time.Second)
	registered := &domain.Customer{ID: "c1", Registered: true}
	auction := func(mutate func(p *domain.Product)) *domain.Product {
		p := &domain.Product{ID: "p1", ProductType: domain.ProductAuction, StartPrice: 50, AvailableEndDateTimeUTC: &end}
		if mutate != nil {
			mutate(p)
		}
		return p
	}

	tests := []struct {
		name     string
		customer *domain.Customer
		product  *domain.Product
		amount   float64
		wantErr  error
	}{
		{name: "guest", customer: &domain.Customer{ID: "c1"}, product: auction(nil), amount: 100, wantErr: domain.ErrCustomerNotRegistered},
		{name: "no customer", product: auction(nil), amount: 100, wantErr: domain.ErrCustomerNotRegistered},
		{name: "no product", customer: registered, amount: 100, wantErr: domain.ErrProductNotFound},
		{
			name:     "simple product",
			customer: registered,
			product:  auction(func(p *domain.Product) { p.ProductType = domain.ProductSimple }),
			amount:   100,
			wantErr:  domain.ErrNotAuction,
		},
		{
			name:     "ended",
			customer: registered,
			product:  auction(func(p *domain.Product) { p.AuctionEnded = true }),
			amount:   100,
			wantErr:  domain.ErrAuctionEnded,
		},
		{
			name:     "expired",
			customer: registered,
			product:  auction(func(p *domain.Product) { p.AvailableEndDateTimeUTC = &past }),
			amount:   100,
			wantErr:  domain.ErrAuctionEnded,
		},
		{name: "negative amount", customer: registered, product: auction(nil), amount: -1, wantErr: domain.ErrInvalidAmount},
		{name: "below start increment", customer: registered, product: auction(nil), amount: 54.99, wantErr: domain.ErrBidTooLow},
		{name: "at start increment", customer: registered, product: auction(nil), amount: 55},
		{
			name:     "below highest increment",
			customer: registered,
			product:  auction(func(p *domain.Product) { p.HighestBid = 200 }),
			amount:   209,
			wantErr:  domain.ErrBidTooLow,
		},
		{
			name:     "above highest increment",
			customer: registered,
			product:  auction(func(p *domain.Product) { p.HighestBid = 200 }),
			amount:   210,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(&stubRulesStore{rules: domain.DefaultBidValidationRules()})
			err := v.Validate(context.Background(), tt.customer, tt.product, tt.amount)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBidValidatorLoadsRulesOnce(t *testing.T) {
	store := &stubRulesStore{rules: domain.DefaultBidValidationRules()}
	v := newTestValidator(store)
	ctx := context.Background()
	product := &domain.Product{ID: "p1", ProductType: domain.ProductAuction}
	customer := &domain.Customer{ID: "c1", Registered: true}

	require.NoError(t, v.Validate(ctx, customer, product, 10))
	require.NoError(t, v.Validate(ctx, customer, product, 10))
	assert.Equal(t, 1, store.loads)
}

func TestBidValidatorFallsBackToDefaultsWhenRulesUnavailable(t *testing.T) {
	store := &stubRulesStore{err: errors.New("redis unavailable")}
	v := newTestValidator(store)
	product := &domain.Product{ID: "p1", ProductType: domain.ProductAuction}
	customer := &domain.Customer{ID: "c1", Registered: true}

	err := v.Validate(context.Background(), customer, product, 4)
	assert.ErrorIs(t, err, domain.ErrBidTooLow)
	assert.Contains(t, err.Error(), "minimum bid is 5.00")

	assert.NoError(t, v.Validate(context.Background(), customer, product, 5))
	assert.Equal(t, 2, store.loads, "a failed load is retried on the next validation")
}
