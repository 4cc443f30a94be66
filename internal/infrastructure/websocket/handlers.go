package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// newUpgrader accepts requests without an Origin header and browser
// requests from allowedOrigins. An empty list or "*" allows every origin.
func newUpgrader(allowedOrigins []string, log logger.Logger) *websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll || allowed[origin] {
				return true
			}
			log.Info("Rejected websocket origin", "origin", origin, "path", r.URL.Path)
			return false
		},
	}
}

// ProductReader looks up the product a client wants to watch.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type WebSocketHandler struct {
	products    ProductReader
	connManager domain.ConnectionManager
	upgrader    *websocket.Upgrader
	log         logger.Logger
	now         func() time.Time
}

// NewWebSocketHandler builds the handler. With a nil products reader the
// product is not checked before upgrading.
func NewWebSocketHandler(products ProductReader, connManager domain.ConnectionManager,
	allowedOrigins []string, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		products:    products,
		connManager: connManager,
		upgrader:    newUpgrader(allowedOrigins, log),
		log:         log,
		now:         time.Now,
	}
}

// HandleConnection serves /ws/products/{productID}?customer_id=...
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productID"]
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		http.Error(w, "customer_id required", http.StatusBadRequest)
		return
	}

	var snapshot map[string]interface{}
	if h.products != nil {
		product, err := h.products.GetProduct(r.Context(), productID)
		if errors.Is(err, domain.ErrProductNotFound) {
			http.Error(w, "product not found", http.StatusNotFound)
			return
		}
		if err != nil {
			h.log.Error("Failed to load product", "product_id", productID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !product.IsAuction() {
			http.Error(w, "product is not an auction", http.StatusBadRequest)
			return
		}
		if product.Closed(h.now().UTC()) {
			h.log.Info("Rejected connection - auction has ended", "product_id", productID)
			http.Error(w, "auction has already ended", http.StatusForbidden)
			return
		}
		snapshot = productState(product)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewConnection(conn, customerID, productID)
	if err := h.connManager.RegisterConnection(customerID, productID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		conn.Close()
		return
	}

	if snapshot != nil {
		if err := wsConn.Send(snapshot); err != nil {
			h.log.Warn("Failed to send product state", "product_id", productID, "error", err)
		}
	}

	go h.handleMessages(wsConn)
}

func (h *WebSocketHandler) handleMessages(conn *Connection) {
	defer func() {
		h.connManager.UnregisterConnection(conn)
		conn.conn.Close()
	}()

	conn.conn.SetReadLimit(maxMessageSize)
	for {
		var msg map[string]interface{}
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Connection closed unexpectedly", "customer_id", conn.customerID, "error", err)
			}
			return
		}

		msgType, _ := msg["type"].(string)
		switch msgType {
		case "ping":
			conn.Send(map[string]string{"type": "pong"})
		default:
			conn.Send(map[string]string{"type": "error", "message": "unsupported message type"})
		}
	}
}

func productState(p *domain.Product) map[string]interface{} {
	state := map[string]interface{}{
		"type":           "product_state",
		"product_id":     p.ID,
		"current_price":  p.CurrentPrice(),
		"highest_bid":    p.HighestBid,
		"highest_bidder": p.HighestBidder,
	}
	if p.AvailableEndDateTimeUTC != nil {
		state["ends_at"] = p.AvailableEndDateTimeUTC
	}
	return state
}

// Connection is one client watching one product. Writes are serialized.
type Connection struct {
	conn       *websocket.Conn
	customerID string
	productID  string
	writeMu    sync.Mutex
}

func NewConnection(conn *websocket.Conn, customerID, productID string) *Connection {
	return &Connection{
		conn:       conn,
		customerID: customerID,
		productID:  productID,
	}
}

func (c *Connection) Send(message interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(message)
}

// Close sends a normal close frame and closes the socket.
func (c *Connection) Close() error {
	deadline := time.Now().Add(writeWait)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "auction closed"), deadline)
	return c.conn.Close()
}

func (c *Connection) CustomerID() string {
	return c.customerID
}

func (c *Connection) ProductID() string {
	return c.productID
}
