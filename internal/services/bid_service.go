package services

import (
	"context"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

// AddBidRequest is the storefront "add bid" action of a customer.
type AddBidRequest struct {
	Customer    domain.Customer
	ProductID   string
	Store       *domain.StoreRef
	Language    *domain.Language
	WarehouseID string
	Amount      float64
}

// BidService is the storefront entry point for bids: it validates the bid
// for the customer and then places it through the auction service.
type BidService struct {
	auctions  *AuctionService
	validator *BidValidator
	log       logger.Logger
}

func NewBidService(auctions *AuctionService, validator *BidValidator, log logger.Logger) *BidService {
	return &BidService{
		auctions:  auctions,
		validator: validator,
		log:       log,
	}
}

func (s *BidService) AddBid(ctx context.Context, req AddBidRequest) (*domain.Bid, error) {
	s.log.Info("Placing bid", "product_id", req.ProductID, "customer_id", req.Customer.ID, "amount", req.Amount)

	product, err := s.auctions.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	req.Amount = domain.RoundAmount(req.Amount)
	if err := s.validator.Validate(ctx, &req.Customer, product, req.Amount); err != nil {
		s.log.Info("Bid rejected by validation", "product_id", req.ProductID,
			"customer_id", req.Customer.ID, "reason", err)
		return nil, err
	}

	return s.auctions.NewBid(ctx, NewBidRequest{
		Customer:    &req.Customer,
		Product:     product,
		Store:       req.Store,
		Language:    req.Language,
		WarehouseID: req.WarehouseID,
		Amount:      req.Amount,
	})
}

// MinimumBid is the lowest amount the validator accepts for the product.
func (s *BidService) MinimumBid(ctx context.Context, productID string) (float64, error) {
	product, err := s.auctions.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	s.validator.ensureRules(ctx)
	return s.validator.GetMinimumBid(product.CurrentPrice()), nil
}
