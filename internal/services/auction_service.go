package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/metrics"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/utils"
)

const (
	defaultMaxBidRetries = 5
	defaultCacheTTL      = 10 * time.Minute
)

// NewBidRequest carries everything NewBid needs. The caller resolves the
// customer, store and language; nothing is read from ambient context.
type NewBidRequest struct {
	Customer    *domain.Customer
	Product     *domain.Product
	Store       *domain.StoreRef
	Language    *domain.Language
	WarehouseID string
	Amount      float64
}

type AuctionService struct {
	store      domain.Store
	cache      domain.Cache
	eventPub   domain.EventPublisher
	metrics    *metrics.Recorder
	log        logger.Logger
	maxRetries int
	cacheTTL   time.Duration
	now        func() time.Time
}

type AuctionServiceOption func(*AuctionService)

// WithMaxBidRetries bounds the attempts of a version-checked write.
func WithMaxBidRetries(n int) AuctionServiceOption {
	return func(s *AuctionService) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func WithCacheTTL(ttl time.Duration) AuctionServiceOption {
	return func(s *AuctionService) { s.cacheTTL = ttl }
}

func WithClock(now func() time.Time) AuctionServiceOption {
	return func(s *AuctionService) { s.now = now }
}

func WithMetrics(recorder *metrics.Recorder) AuctionServiceOption {
	return func(s *AuctionService) { s.metrics = recorder }
}

func NewAuctionService(
	store domain.Store,
	cache domain.Cache,
	eventPub domain.EventPublisher,
	log logger.Logger,
	opts ...AuctionServiceOption,
) *AuctionService {
	s := &AuctionService{
		store:      store,
		cache:      cache,
		eventPub:   eventPub,
		log:        log,
		maxRetries: defaultMaxBidRetries,
		cacheTTL:   defaultCacheTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuctionService) CreateProduct(ctx context.Context, product *domain.Product) error {
	if product == nil || !product.ProductType.Valid() {
		return domain.ErrInvalidProduct
	}
	product.StartPrice = domain.RoundAmount(product.StartPrice)
	if product.StartPrice < 0 {
		return domain.ErrInvalidAmount
	}
	if product.ID == "" {
		product.ID = utils.GenerateID("product")
	}
	if product.AvailableEndDateTimeUTC != nil {
		end := product.AvailableEndDateTimeUTC.UTC()
		product.AvailableEndDateTimeUTC = &end
	}

	if err := s.store.Products().CreateProduct(ctx, product); err != nil {
		return err
	}

	s.log.Info("Product created", "product_id", product.ID, "type", product.ProductType)
	return nil
}

func (s *AuctionService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.store.Products().GetProduct(ctx, productID)
}

// GetBid returns nil without an error when the bid does not exist.
func (s *AuctionService) GetBid(ctx context.Context, bidID string) (*domain.Bid, error) {
	key := bidByIDKey(bidID)

	var cached domain.Bid
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	bid, err := s.store.Bids().GetBid(ctx, bidID)
	if errors.Is(err, domain.ErrBidNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, bid)
	return bid, nil
}

// GetLatestBid returns the most recent bid of a product, or nil when there
// is none.
func (s *AuctionService) GetLatestBid(ctx context.Context, productID string) (*domain.Bid, error) {
	return s.store.Bids().GetLatestBid(ctx, productID)
}

func (s *AuctionService) GetBidsByProductID(ctx context.Context, productID string) ([]*domain.Bid, error) {
	return s.cachedBids(ctx, bidsByProductKey(productID), func() ([]*domain.Bid, error) {
		return s.store.Bids().GetBidsByProductID(ctx, productID)
	})
}

func (s *AuctionService) GetBidsByCustomerID(ctx context.Context, customerID string) ([]*domain.Bid, error) {
	return s.cachedBids(ctx, bidsByCustomerKey(customerID), func() ([]*domain.Bid, error) {
		return s.store.Bids().GetBidsByCustomerID(ctx, customerID)
	})
}

// InsertBid stores a bid as given. It does not touch the product's highest
// bid; NewBid is the entry point for placing bids.
func (s *AuctionService) InsertBid(ctx context.Context, bid *domain.Bid) error {
	if bid != nil {
		bid.Amount = domain.RoundAmount(bid.Amount)
	}
	if bid == nil || bid.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if bid.ID == "" {
		bid.ID = utils.GenerateID("bid")
	}
	if bid.Date.IsZero() {
		bid.Date = s.now().UTC()
	}

	if err := s.store.Bids().InsertBid(ctx, bid); err != nil {
		return err
	}

	s.invalidateBids(ctx)
	s.publish(ctx, bidEvent(domain.EventBidInserted, bid))
	return nil
}

func (s *AuctionService) UpdateBid(ctx context.Context, bid *domain.Bid) error {
	if bid != nil {
		bid.Amount = domain.RoundAmount(bid.Amount)
	}
	if bid == nil || bid.Amount <= 0 {
		return domain.ErrInvalidAmount
	}

	if err := s.store.Bids().UpdateBid(ctx, bid); err != nil {
		return err
	}

	s.invalidateBids(ctx)
	s.publish(ctx, bidEvent(domain.EventBidUpdated, bid))
	return nil
}

func (s *AuctionService) DeleteBid(ctx context.Context, bid *domain.Bid) error {
	if bid == nil {
		return domain.ErrBidNotFound
	}

	if err := s.store.Bids().DeleteBid(ctx, bid.ID); err != nil {
		return err
	}

	s.invalidateBids(ctx)
	s.publish(ctx, bidEvent(domain.EventBidDeleted, bid))
	return nil
}

// UpdateHighestBid overrides the product's highest bid with amount,
// regardless of the bid history. product is refreshed with the stored state.
func (s *AuctionService) UpdateHighestBid(ctx context.Context, product *domain.Product, amount float64, warehouseID string) error {
	if product == nil {
		return domain.ErrProductNotFound
	}
	amount = domain.RoundAmount(amount)
	if amount < 0 {
		return domain.ErrInvalidAmount
	}

	updated, err := s.updateProduct(ctx, product.ID, func(tx domain.Store, p *domain.Product) error {
		p.HighestBid = amount
		return nil
	})
	if err != nil {
		return err
	}
	*product = *updated

	s.log.Info("Highest bid overridden", "product_id", product.ID, "amount", amount)
	s.publish(ctx, &domain.AuctionEvent{
		Type:        domain.EventHighestBidUpdated,
		ProductID:   product.ID,
		CustomerID:  product.HighestBidder,
		WarehouseID: warehouseID,
		Amount:      amount,
	})
	return nil
}

// RefreshHighestBid recomputes the highest-bid projection of a product from
// its bids.
func (s *AuctionService) RefreshHighestBid(ctx context.Context, productID string) (*domain.Product, error) {
	updated, err := s.updateProduct(ctx, productID, func(tx domain.Store, p *domain.Product) error {
		return refreshProjection(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, &domain.AuctionEvent{
		Type:       domain.EventHighestBidUpdated,
		ProductID:  updated.ID,
		CustomerID: updated.HighestBidder,
		Amount:     updated.HighestBid,
	})
	return updated, nil
}

// GetAuctionsToEnd lists unended auctions whose end time has passed.
func (s *AuctionService) GetAuctionsToEnd(ctx context.Context) ([]*domain.Product, error) {
	return s.store.Products().GetAuctionsToEnd(ctx, s.now().UTC())
}

// UpdateAuctionEnded sets the ended flag. Ending an auction marks its
// highest bid as the winning one and, when notifyCustomer is set, announces
// the winner.
func (s *AuctionService) UpdateAuctionEnded(ctx context.Context, product *domain.Product, ended, notifyCustomer bool) error {
	if product == nil {
		return domain.ErrProductNotFound
	}

	var winner *domain.Bid
	updated, err := s.updateProduct(ctx, product.ID, func(tx domain.Store, p *domain.Product) error {
		winner = nil
		p.AuctionEnded = ended
		if !ended {
			return clearWinningBids(ctx, tx, p.ID)
		}

		highest, err := tx.Bids().GetHighestBid(ctx, p.ID)
		if err != nil {
			return err
		}
		if highest != nil && !highest.Win {
			highest.Win = true
			if err := tx.Bids().UpdateBid(ctx, highest); err != nil {
				return err
			}
		}
		winner = highest
		return nil
	})
	if err != nil {
		return err
	}
	*product = *updated

	if !ended {
		s.invalidateBids(ctx)
		s.log.Info("Auction reopened", "product_id", product.ID)
		return nil
	}

	s.metrics.AuctionEnded()
	s.invalidateBids(ctx)
	s.log.Info("Auction ended", "product_id", product.ID, "highest_bid", product.HighestBid)

	event := &domain.AuctionEvent{
		Type:      domain.EventAuctionEnded,
		ProductID: product.ID,
		Amount:    product.HighestBid,
	}
	if winner != nil {
		event.BidID = winner.ID
		event.CustomerID = winner.CustomerID
	}
	s.publish(ctx, event)

	if notifyCustomer && winner != nil {
		won := bidEvent(domain.EventAuctionWon, winner)
		s.publish(ctx, won)
	}
	return nil
}

// NewBid places a bid. Each attempt reloads the product and, in one
// transaction, checks the bid against the current price, stores it and
// advances the product's highest bid under a version check. A concurrent
// product write makes the attempt start over; once the attempts are used up
// the bid fails with ErrBidSuperseded.
func (s *AuctionService) NewBid(ctx context.Context, req NewBidRequest) (*domain.Bid, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveBid(time.Since(start)) }()

	if req.Customer == nil || req.Customer.ID == "" {
		s.metrics.BidResult(metrics.BidRejected)
		return nil, domain.ErrCustomerNotRegistered
	}
	if req.Product == nil {
		s.metrics.BidResult(metrics.BidRejected)
		return nil, domain.ErrProductNotFound
	}
	req.Amount = domain.RoundAmount(req.Amount)
	if req.Amount <= 0 {
		s.metrics.BidResult(metrics.BidRejected)
		return nil, domain.ErrInvalidAmount
	}

	var bid *domain.Bid
	var product *domain.Product
	attempts, err := s.retryOnConflict(func() error {
		return s.store.WithinTx(ctx, func(tx domain.Store) error {
			p, err := tx.Products().GetProduct(ctx, req.Product.ID)
			if err != nil {
				return err
			}

			now := s.now().UTC()
			if !p.IsAuction() {
				return domain.ErrNotAuction
			}
			if p.Closed(now) {
				return domain.ErrAuctionEnded
			}
			if req.Amount <= p.CurrentPrice() {
				return domain.ErrBidTooLow
			}

			b := &domain.Bid{
				ID:          utils.GenerateID("bid"),
				ProductID:   p.ID,
				CustomerID:  req.Customer.ID,
				StoreID:     storeID(req.Store),
				WarehouseID: req.WarehouseID,
				Amount:      req.Amount,
				Date:        now,
			}
			if err := tx.Bids().InsertBid(ctx, b); err != nil {
				return err
			}

			p.HighestBid = req.Amount
			p.HighestBidder = req.Customer.ID
			if err := tx.Products().UpdateProduct(ctx, p); err != nil {
				return err
			}

			bid, product = b, p
			return nil
		})
	})
	for i := 1; i < attempts; i++ {
		s.metrics.BidRetry()
	}

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrVersionConflict):
			s.metrics.BidResult(metrics.BidSuperseded)
			s.log.Warn("Bid superseded", "product_id", req.Product.ID, "customer_id", req.Customer.ID,
				"amount", req.Amount, "attempts", attempts)
			return nil, fmt.Errorf("%w after %d attempts", domain.ErrBidSuperseded, attempts)
		case isBidRejection(err):
			s.metrics.BidResult(metrics.BidRejected)
			s.log.Debug("Bid rejected", "product_id", req.Product.ID, "amount", req.Amount, "reason", err)
		default:
			s.metrics.BidResult(metrics.BidFailed)
			s.log.Error("Failed to place bid", "product_id", req.Product.ID, "error", err)
		}
		return nil, err
	}

	s.metrics.BidResult(metrics.BidAccepted)
	s.invalidateBids(ctx)
	s.log.Info("Bid placed", "bid_id", bid.ID, "product_id", bid.ProductID,
		"customer_id", bid.CustomerID, "amount", bid.Amount, "attempts", attempts)

	placed := bidEvent(domain.EventBidPlaced, bid)
	placed.LanguageID = languageID(req.Language)
	s.publish(ctx, placed)
	s.publish(ctx, &domain.AuctionEvent{
		Type:        domain.EventHighestBidUpdated,
		ProductID:   product.ID,
		BidID:       bid.ID,
		CustomerID:  product.HighestBidder,
		StoreID:     bid.StoreID,
		WarehouseID: bid.WarehouseID,
		LanguageID:  placed.LanguageID,
		Amount:      product.HighestBid,
	})
	return bid, nil
}

// CancelBidByOrder removes every bid attached to orderID and recomputes the
// highest bid of the affected products in the same transaction. It returns
// the number of bids removed.
func (s *AuctionService) CancelBidByOrder(ctx context.Context, orderID string) (int64, error) {
	if orderID == "" {
		return 0, nil
	}

	var removed []*domain.Bid
	var refreshed []*domain.Product
	_, err := s.retryOnConflict(func() error {
		return s.store.WithinTx(ctx, func(tx domain.Store) error {
			bids, err := tx.Bids().GetBidsByOrderID(ctx, orderID)
			if err != nil {
				return err
			}
			if len(bids) == 0 {
				removed, refreshed = nil, nil
				return nil
			}
			if _, err := tx.Bids().DeleteBidsByOrderID(ctx, orderID); err != nil {
				return err
			}

			products := []*domain.Product{}
			seen := make(map[string]bool)
			for _, b := range bids {
				if seen[b.ProductID] {
					continue
				}
				seen[b.ProductID] = true

				p, err := tx.Products().GetProduct(ctx, b.ProductID)
				if errors.Is(err, domain.ErrProductNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if err := refreshProjection(ctx, tx, p); err != nil {
					return err
				}
				if err := tx.Products().UpdateProduct(ctx, p); err != nil {
					return err
				}
				products = append(products, p)
			}

			removed, refreshed = bids, products
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if len(removed) == 0 {
		return 0, nil
	}

	s.invalidateBids(ctx)
	s.log.Info("Bids cancelled by order", "order_id", orderID, "count", len(removed))

	for _, b := range removed {
		s.publish(ctx, bidEvent(domain.EventBidDeleted, b))
	}
	for _, p := range refreshed {
		s.publish(ctx, &domain.AuctionEvent{
			Type:       domain.EventHighestBidUpdated,
			ProductID:  p.ID,
			CustomerID: p.HighestBidder,
			Amount:     p.HighestBid,
		})
	}
	return int64(len(removed)), nil
}

// updateProduct applies mutate to a freshly read product and writes it back
// under the version check, retrying on conflicts.
func (s *AuctionService) updateProduct(ctx context.Context, productID string, mutate func(tx domain.Store, p *domain.Product) error) (*domain.Product, error) {
	var updated *domain.Product
	_, err := s.retryOnConflict(func() error {
		return s.store.WithinTx(ctx, func(tx domain.Store) error {
			p, err := tx.Products().GetProduct(ctx, productID)
			if err != nil {
				return err
			}
			if err := mutate(tx, p); err != nil {
				return err
			}
			if err := tx.Products().UpdateProduct(ctx, p); err != nil {
				return err
			}
			updated = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// retryOnConflict runs fn until it stops failing with ErrVersionConflict or
// maxRetries attempts were made. It returns the number of attempts.
func (s *AuctionService) retryOnConflict(fn func() error) (int, error) {
	var err error
	attempt := 0
	for attempt < s.maxRetries {
		attempt++
		err = fn()
		if !errors.Is(err, domain.ErrVersionConflict) {
			return attempt, err
		}
		s.log.Debug("Version conflict, retrying", "attempt", attempt)
	}
	return attempt, err
}

func refreshProjection(ctx context.Context, tx domain.Store, p *domain.Product) error {
	highest, err := tx.Bids().GetHighestBid(ctx, p.ID)
	if err != nil {
		return err
	}
	if highest == nil {
		p.HighestBid = 0
		p.HighestBidder = ""
		return nil
	}
	p.HighestBid = highest.Amount
	p.HighestBidder = highest.CustomerID
	return nil
}

func clearWinningBids(ctx context.Context, tx domain.Store, productID string) error {
	bids, err := tx.Bids().GetBidsByProductID(ctx, productID)
	if err != nil {
		return err
	}
	for _, b := range bids {
		if !b.Win {
			continue
		}
		b.Win = false
		if err := tx.Bids().UpdateBid(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func isBidRejection(err error) bool {
	return errors.Is(err, domain.ErrNotAuction) ||
		errors.Is(err, domain.ErrAuctionEnded) ||
		errors.Is(err, domain.ErrBidTooLow) ||
		errors.Is(err, domain.ErrProductNotFound)
}

func (s *AuctionService) cachedBids(ctx context.Context, key string, load func() ([]*domain.Bid, error)) ([]*domain.Bid, error) {
	var cached []*domain.Bid
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	bids, err := load()
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, bids)
	return bids, nil
}

func (s *AuctionService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.log.Warn("Cache read failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (s *AuctionService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.log.Warn("Cache write failed", "key", key, "error", err)
	}
}

func (s *AuctionService) invalidateBids(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.RemoveByPrefix(ctx, bidCachePrefix); err != nil {
		s.log.Warn("Cache invalidation failed", "prefix", bidCachePrefix, "error", err)
	}
}

// publish sends event without failing the caller; the write it describes is
// already committed.
func (s *AuctionService) publish(ctx context.Context, event *domain.AuctionEvent) {
	if s.eventPub == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.eventPub.Publish(ctx, event); err != nil {
		s.metrics.PublishFailed(string(event.Type))
		s.log.Warn("Failed to publish auction event", "type", event.Type, "product_id", event.ProductID, "error", err)
	}
}

func bidEvent(eventType domain.AuctionEventType, bid *domain.Bid) *domain.AuctionEvent {
	return &domain.AuctionEvent{
		Type:        eventType,
		ProductID:   bid.ProductID,
		BidID:       bid.ID,
		CustomerID:  bid.CustomerID,
		StoreID:     bid.StoreID,
		WarehouseID: bid.WarehouseID,
		Amount:      bid.Amount,
	}
}

func storeID(store *domain.StoreRef) string {
	if store == nil {
		return ""
	}
	return store.ID
}

func languageID(language *domain.Language) string {
	if language == nil {
		return ""
	}
	return language.ID
}
