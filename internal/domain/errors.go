package domain

import "errors"

var (
	ErrBidNotFound       = errors.New("bid not found")
	ErrBidExists         = errors.New("bid already exists")
	ErrProductNotFound   = errors.New("product not found")
	ErrInventoryNotFound = errors.New("inventory not found")
	ErrInvalidProduct    = errors.New("invalid product")

	ErrInvalidAmount         = errors.New("bid amount must be positive")
	ErrNotAuction            = errors.New("product is not an auction")
	ErrAuctionEnded          = errors.New("auction has ended")
	ErrBidTooLow             = errors.New("bid amount is too low")
	ErrBidSuperseded         = errors.New("bid superseded by concurrent bids")
	ErrVersionConflict       = errors.New("product was modified concurrently")
	ErrCustomerNotRegistered = errors.New("customer is not registered")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)
