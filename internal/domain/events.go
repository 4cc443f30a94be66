package domain

import "time"

type AuctionEventType string

const (
	EventBidInserted       AuctionEventType = "bid_inserted"
	EventBidUpdated        AuctionEventType = "bid_updated"
	EventBidDeleted        AuctionEventType = "bid_deleted"
	EventBidPlaced         AuctionEventType = "bid_placed"
	EventHighestBidUpdated AuctionEventType = "highest_bid_updated"
	EventAuctionEnded      AuctionEventType = "auction_ended"
	EventAuctionWon        AuctionEventType = "auction_won"
	EventStockChanged      AuctionEventType = "stock_changed"
)

type AuctionEvent struct {
	Type        AuctionEventType `json:"type"`
	ProductID   string           `json:"product_id"`
	BidID       string           `json:"bid_id,omitempty"`
	CustomerID  string           `json:"customer_id,omitempty"`
	StoreID     string           `json:"store_id,omitempty"`
	WarehouseID string           `json:"warehouse_id,omitempty"`
	LanguageID  string           `json:"language_id,omitempty"`
	Amount      float64          `json:"amount,omitempty"`
	Quantity    int              `json:"quantity,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}
