package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"auction-storefront/internal/api/middleware"
	"auction-storefront/internal/infrastructure/websocket"
	"auction-storefront/pkg/logger"

	"github.com/gorilla/mux"
)

// NewNotificationRouter routes the notification service: the product
// websocket endpoint and a health check.
func NewNotificationRouter(wsHandler *websocket.WebSocketHandler, allowedOrigins []string, log logger.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.CORS(allowedOrigins, log))

	router.HandleFunc("/ws/products/{productID}", wsHandler.HandleConnection).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"service":   "notification-service",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet, http.MethodOptions)

	return router
}
