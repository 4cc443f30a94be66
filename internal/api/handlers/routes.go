package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the storefront API, the health check and the
// Prometheus endpoint on e.
func RegisterRoutes(e *echo.Echo, auctions *AuctionHandler, inventory *InventoryHandler, gatherer prometheus.Gatherer) {
	api := e.Group("/api/v1")

	api.POST("/products", auctions.CreateProduct)
	api.GET("/products/:id", auctions.GetProduct)
	api.POST("/products/:id/bids", auctions.AddBid)
	api.GET("/products/:id/bids", auctions.ListProductBids)
	api.GET("/products/:id/bids/latest", auctions.LatestBid)
	api.GET("/products/:id/bids/minimum", auctions.MinimumBid)
	api.PUT("/products/:id/highest-bid", auctions.UpdateHighestBid)
	api.POST("/products/:id/highest-bid/refresh", auctions.RefreshHighestBid)
	api.PUT("/products/:id/auction-ended", auctions.UpdateAuctionEnded)

	api.GET("/products/:id/inventory", inventory.GetInventory)
	api.PUT("/products/:id/inventory", inventory.SetStock)
	api.POST("/products/:id/inventory/reserve", inventory.Reserve)
	api.POST("/products/:id/inventory/release", inventory.Release)
	api.POST("/products/:id/inventory/book", inventory.Book)
	api.POST("/products/:id/inventory/adjust", inventory.Adjust)

	api.GET("/customers/:id/bids", auctions.ListCustomerBids)

	api.POST("/bids", auctions.InsertBid)
	api.GET("/bids/:id", auctions.GetBid)
	api.PUT("/bids/:id", auctions.UpdateBid)
	api.DELETE("/bids/:id", auctions.DeleteBid)

	api.DELETE("/orders/:id/bids", auctions.CancelOrderBids)

	api.GET("/auctions/to-end", auctions.AuctionsToEnd)
	api.POST("/auctions/sweep", auctions.Sweep)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-service",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
