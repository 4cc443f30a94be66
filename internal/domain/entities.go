package domain

import (
	"math"
	"time"
)

type ProductType string

const (
	ProductSimple  ProductType = "simple"
	ProductAuction ProductType = "auction"
)

func (t ProductType) Valid() bool {
	return t == ProductSimple || t == ProductAuction
}

// Product is the auction-relevant subset of a catalog product. HighestBid and
// HighestBidder are a projection of the bid collection and Version guards
// every write to them.
type Product struct {
	ID                      string      `json:"id"`
	Name                    string      `json:"name"`
	ProductType             ProductType `json:"product_type"`
	StartPrice              float64     `json:"start_price"`
	HighestBid              float64     `json:"highest_bid"`
	HighestBidder           string      `json:"highest_bidder,omitempty"`
	AvailableEndDateTimeUTC *time.Time  `json:"available_end_date_time_utc,omitempty"`
	AuctionEnded            bool        `json:"auction_ended"`
	Version                 int64       `json:"version"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

func (p *Product) IsAuction() bool {
	return p.ProductType == ProductAuction
}

// CurrentPrice is the amount a new bid has to beat.
func (p *Product) CurrentPrice() float64 {
	if p.HighestBid > p.StartPrice {
		return p.HighestBid
	}
	return p.StartPrice
}

// Closed reports whether the auction no longer accepts bids at now.
func (p *Product) Closed(now time.Time) bool {
	if p.AuctionEnded {
		return true
	}
	return p.AvailableEndDateTimeUTC != nil && !now.Before(*p.AvailableEndDateTimeUTC)
}

// RoundAmount rounds a money amount to cents, the precision amounts are
// stored with.
func RoundAmount(amount float64) float64 {
	return math.Round(amount*100) / 100
}

type Bid struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	CustomerID  string    `json:"customer_id"`
	StoreID     string    `json:"store_id,omitempty"`
	WarehouseID string    `json:"warehouse_id,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	Win         bool      `json:"win"`
}

type Inventory struct {
	ProductID        string    `json:"product_id"`
	WarehouseID      string    `json:"warehouse_id"`
	StockQuantity    int       `json:"stock_quantity"`
	ReservedQuantity int       `json:"reserved_quantity"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (i *Inventory) Available() int {
	return i.StockQuantity - i.ReservedQuantity
}

// Caller references. They are supplied by the caller and never loaded here.

type Customer struct {
	ID         string `json:"id"`
	Email      string `json:"email,omitempty"`
	Registered bool   `json:"registered"`
}

type StoreRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Language struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
}

type BidValidationRules struct {
	Rules map[string]float64 `json:"rules"`
}

// DefaultBidValidationRules are the increment tiers used until an operator
// stores different ones.
func DefaultBidValidationRules() *BidValidationRules {
	return &BidValidationRules{
		Rules: map[string]float64{
			"0-100":   5.0,
			"100-500": 10.0,
			"500+":    25.0,
		},
	}
}
