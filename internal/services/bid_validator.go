package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

// BidValidator runs the storefront checks that precede NewBid. Its price
// check uses the increment tiers, so it is stricter than the atomic check
// inside NewBid.
type BidValidator struct {
	rulesStore domain.BidRulesStore
	log        logger.Logger
	now        func() time.Time

	mu    sync.RWMutex
	rules *domain.BidValidationRules
}

func NewBidValidator(rulesStore domain.BidRulesStore, log logger.Logger) *BidValidator {
	return &BidValidator{
		rulesStore: rulesStore,
		log:        log,
		now:        time.Now,
	}
}

func (v *BidValidator) LoadRules(ctx context.Context) error {
	rules, err := v.rulesStore.LoadRules(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.rules = rules
	v.mu.Unlock()
	return nil
}

func (v *BidValidator) GetIncrementRule(amount float64) float64 {
	v.mu.RLock()
	rules := v.rules
	v.mu.RUnlock()

	if rules == nil {
		rules = domain.DefaultBidValidationRules()
	}

	var tier string
	if amount < 100 {
		tier = "0-100"
	} else if amount < 500 {
		tier = "100-500"
	} else {
		tier = "500+"
	}

	if increment, ok := rules.Rules[tier]; ok {
		return increment
	}
	return domain.DefaultBidValidationRules().Rules[tier]
}

func (v *BidValidator) GetMinimumBid(currentAmount float64) float64 {
	return currentAmount + v.GetIncrementRule(currentAmount)
}

func (v *BidValidator) Validate(ctx context.Context, customer *domain.Customer, product *domain.Product, amount float64) error {
	if customer == nil || customer.ID == "" || !customer.Registered {
		return domain.ErrCustomerNotRegistered
	}
	if product == nil {
		return domain.ErrProductNotFound
	}
	if !product.IsAuction() {
		return domain.ErrNotAuction
	}
	if product.Closed(v.now().UTC()) {
		return domain.ErrAuctionEnded
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	v.ensureRules(ctx)

	minimum := v.GetMinimumBid(product.CurrentPrice())
	if amount < minimum {
		return fmt.Errorf("%w: minimum bid is %.2f", domain.ErrBidTooLow, minimum)
	}
	return nil
}

// ensureRules loads the rules on first use. Until a load succeeds the
// default tiers apply.
func (v *BidValidator) ensureRules(ctx context.Context) {
	v.mu.RLock()
	loaded := v.rules != nil
	v.mu.RUnlock()
	if loaded {
		return
	}

	if err := v.LoadRules(ctx); err != nil {
		v.log.Warn("Failed to load bid rules, using defaults", "error", err)
	}
}
