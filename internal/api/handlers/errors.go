package handlers

import (
	"errors"
	"net/http"

	"auction-storefront/internal/domain"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrBidNotFound),
		errors.Is(err, domain.ErrInventoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBidSuperseded),
		errors.Is(err, domain.ErrBidExists),
		errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBidTooLow),
		errors.Is(err, domain.ErrAuctionEnded),
		errors.Is(err, domain.ErrNotAuction),
		errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCustomerNotRegistered):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return c.JSON(status, errorResponse{Error: "internal error"})
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
