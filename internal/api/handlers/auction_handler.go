package handlers

import (
	"context"
	"net/http"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Sweeper ends expired auctions on demand.
type Sweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

type AuctionHandler struct {
	auctions *services.AuctionService
	bids     *services.BidService
	sweeper  Sweeper
	log      logger.Logger
}

func NewAuctionHandler(auctions *services.AuctionService, bids *services.BidService, sweeper Sweeper,
	log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		bids:     bids,
		sweeper:  sweeper,
		log:      log,
	}
}

type CreateProductRequest struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	ProductType domain.ProductType `json:"product_type"`
	StartPrice  float64            `json:"start_price"`
	EndTime     *time.Time         `json:"available_end_date_time_utc"`
}

type AddBidRequest struct {
	CustomerID  string  `json:"customer_id"`
	Email       string  `json:"customer_email"`
	Registered  bool    `json:"registered"`
	StoreID     string  `json:"store_id"`
	LanguageID  string  `json:"language_id"`
	WarehouseID string  `json:"warehouse_id"`
	Amount      float64 `json:"amount"`
}

type HighestBidRequest struct {
	Amount      float64 `json:"amount"`
	WarehouseID string  `json:"warehouse_id"`
}

type AuctionEndedRequest struct {
	Ended          bool `json:"ended"`
	NotifyCustomer bool `json:"notify_customer"`
}

func (h *AuctionHandler) CreateProduct(c echo.Context) error {
	var req CreateProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ProductType == domain.ProductAuction && req.EndTime != nil && !req.EndTime.After(time.Now()) {
		return badRequest(c, "end time must be in the future")
	}

	product := &domain.Product{
		ID:                      req.ID,
		Name:                    req.Name,
		ProductType:             req.ProductType,
		StartPrice:              req.StartPrice,
		AvailableEndDateTimeUTC: req.EndTime,
	}
	if err := h.auctions.CreateProduct(c.Request().Context(), product); err != nil {
		h.log.Error("Failed to create product", "error", err)
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, product)
}

func (h *AuctionHandler) GetProduct(c echo.Context) error {
	product, err := h.auctions.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// AddBid is the storefront bid action: validation first, then NewBid.
func (h *AuctionHandler) AddBid(c echo.Context) error {
	var req AddBidRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.CustomerID == "" {
		return badRequest(c, "customer_id required")
	}

	addReq := services.AddBidRequest{
		Customer:    domain.Customer{ID: req.CustomerID, Email: req.Email, Registered: req.Registered},
		ProductID:   c.Param("id"),
		WarehouseID: req.WarehouseID,
		Amount:      req.Amount,
	}
	if req.StoreID != "" {
		addReq.Store = &domain.StoreRef{ID: req.StoreID}
	}
	if req.LanguageID != "" {
		addReq.Language = &domain.Language{ID: req.LanguageID}
	}

	bid, err := h.bids.AddBid(c.Request().Context(), addReq)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, bid)
}

func (h *AuctionHandler) MinimumBid(c echo.Context) error {
	minimum, err := h.bids.MinimumBid(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"product_id":  c.Param("id"),
		"minimum_bid": minimum,
	})
}

func (h *AuctionHandler) ListProductBids(c echo.Context) error {
	bids, err := h.auctions.GetBidsByProductID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(bids))
}

func (h *AuctionHandler) LatestBid(c echo.Context) error {
	bid, err := h.auctions.GetLatestBid(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if bid == nil {
		return respondError(c, domain.ErrBidNotFound)
	}
	return c.JSON(http.StatusOK, bid)
}

func (h *AuctionHandler) ListCustomerBids(c echo.Context) error {
	bids, err := h.auctions.GetBidsByCustomerID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(bids))
}

func (h *AuctionHandler) InsertBid(c echo.Context) error {
	var bid domain.Bid
	if err := c.Bind(&bid); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.auctions.InsertBid(c.Request().Context(), &bid); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, &bid)
}

func (h *AuctionHandler) GetBid(c echo.Context) error {
	bid, err := h.auctions.GetBid(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if bid == nil {
		return respondError(c, domain.ErrBidNotFound)
	}
	return c.JSON(http.StatusOK, bid)
}

func (h *AuctionHandler) UpdateBid(c echo.Context) error {
	var bid domain.Bid
	if err := c.Bind(&bid); err != nil {
		return badRequest(c, "invalid request body")
	}
	bid.ID = c.Param("id")
	if err := h.auctions.UpdateBid(c.Request().Context(), &bid); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &bid)
}

func (h *AuctionHandler) DeleteBid(c echo.Context) error {
	ctx := c.Request().Context()
	bid, err := h.auctions.GetBid(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if bid == nil {
		return respondError(c, domain.ErrBidNotFound)
	}
	if err := h.auctions.DeleteBid(ctx, bid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuctionHandler) CancelOrderBids(c echo.Context) error {
	removed, err := h.auctions.CancelBidByOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		h.log.Error("Failed to cancel order bids", "order_id", c.Param("id"), "error", err)
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"order_id": c.Param("id"),
		"removed":  removed,
	})
}

func (h *AuctionHandler) UpdateHighestBid(c echo.Context) error {
	var req HighestBidRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()

	product, err := h.auctions.GetProduct(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if err := h.auctions.UpdateHighestBid(ctx, product, req.Amount, req.WarehouseID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *AuctionHandler) RefreshHighestBid(c echo.Context) error {
	product, err := h.auctions.RefreshHighestBid(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *AuctionHandler) UpdateAuctionEnded(c echo.Context) error {
	var req AuctionEndedRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()

	product, err := h.auctions.GetProduct(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if err := h.auctions.UpdateAuctionEnded(ctx, product, req.Ended, req.NotifyCustomer); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *AuctionHandler) AuctionsToEnd(c echo.Context) error {
	products, err := h.auctions.GetAuctionsToEnd(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return c.JSON(http.StatusOK, products)
}

func (h *AuctionHandler) Sweep(c echo.Context) error {
	ended, err := h.sweeper.SweepOnce(c.Request().Context())
	if err != nil {
		h.log.Error("Manual sweep failed", "error", err)
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"ended": ended})
}

func nonNil(bids []*domain.Bid) []*domain.Bid {
	if bids == nil {
		return []*domain.Bid{}
	}
	return bids
}
