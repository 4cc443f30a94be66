package handlers

import (
	"context"
	"net/http"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"

	"github.com/labstack/echo/v4"
)

type InventoryHandler struct {
	inventory *services.InventoryService
	log       logger.Logger
}

func NewInventoryHandler(inventory *services.InventoryService, log logger.Logger) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, log: log}
}

type StockRequest struct {
	WarehouseID string `json:"warehouse_id"`
	Stock       int    `json:"stock"`
}

type QuantityRequest struct {
	WarehouseID string `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
}

type inventoryResponse struct {
	*domain.Inventory
	Available int `json:"available"`
}

func (h *InventoryHandler) GetInventory(c echo.Context) error {
	warehouseID := c.QueryParam("warehouse_id")
	inv, err := h.inventory.GetInventory(c.Request().Context(), c.Param("id"), warehouseID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, inventoryResponse{Inventory: inv, Available: inv.Available()})
}

func (h *InventoryHandler) SetStock(c echo.Context) error {
	var req StockRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	inv, err := h.inventory.SetStock(c.Request().Context(), c.Param("id"), req.WarehouseID, req.Stock)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, inventoryResponse{Inventory: inv, Available: inv.Available()})
}

func (h *InventoryHandler) Reserve(c echo.Context) error {
	return h.change(c, h.inventory.ReserveStock)
}

func (h *InventoryHandler) Release(c echo.Context) error {
	return h.change(c, h.inventory.ReleaseReservedStock)
}

func (h *InventoryHandler) Book(c echo.Context) error {
	return h.change(c, h.inventory.BookReservedStock)
}

// Adjust takes a signed quantity.
func (h *InventoryHandler) Adjust(c echo.Context) error {
	return h.change(c, h.inventory.AdjustStock)
}

type inventoryChange func(ctx context.Context, productID, warehouseID string, quantity int) (*domain.Inventory, error)

func (h *InventoryHandler) change(c echo.Context, apply inventoryChange) error {
	var req QuantityRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	inv, err := apply(c.Request().Context(), c.Param("id"), req.WarehouseID, req.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, inventoryResponse{Inventory: inv, Available: inv.Available()})
}
