package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/memory"
	"auction-storefront/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu         sync.Mutex
	customerID string
	productID  string
	sent       []string
	closed     bool
	sendErr    error
}

func (c *fakeConn) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	c.sent = append(c.sent, string(payload))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) CustomerID() string { return c.customerID }
func (c *fakeConn) ProductID() string  { return c.productID }

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func TestConnectionManagerBroadcastAndNotify(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	a := &fakeConn{customerID: "c1", productID: "p1"}
	b := &fakeConn{customerID: "c2", productID: "p1"}
	other := &fakeConn{customerID: "c1", productID: "p2"}
	broken := &fakeConn{customerID: "c3", productID: "p1", sendErr: errors.New("broken pipe")}
	for _, c := range []*fakeConn{a, b, other, broken} {
		require.NoError(t, cm.RegisterConnection(c.customerID, c.productID, c))
	}

	require.NoError(t, cm.BroadcastToProduct("p1", map[string]string{"type": "bid_placed"}))
	assert.Equal(t, []string{`{"type":"bid_placed"}`}, a.Sent())
	assert.Equal(t, []string{`{"type":"bid_placed"}`}, b.Sent())
	assert.Empty(t, other.Sent())

	require.NoError(t, cm.NotifyCustomer("c1", map[string]string{"type": "auction_won"}))
	assert.Len(t, a.Sent(), 2)
	assert.Equal(t, []string{`{"type":"auction_won"}`}, other.Sent())

	assert.NoError(t, cm.NotifyCustomer("nobody", map[string]string{"type": "auction_won"}))
}

func TestConnectionManagerReplaceAndUnregister(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	first := &fakeConn{customerID: "c1", productID: "p1"}
	second := &fakeConn{customerID: "c1", productID: "p1"}

	require.NoError(t, cm.RegisterConnection("c1", "p1", first))
	require.NoError(t, cm.RegisterConnection("c1", "p1", second))
	assert.True(t, first.closed)
	assert.Len(t, cm.GetConnectionsForCustomer("c1"), 1)

	// the replaced connection going away leaves its successor registered
	require.NoError(t, cm.UnregisterConnection(first))
	require.Len(t, cm.GetConnectionsForProduct("p1"), 1)

	require.NoError(t, cm.UnregisterConnection(second))
	assert.Empty(t, cm.GetConnectionsForProduct("p1"))
	assert.Empty(t, cm.GetConnectionsForCustomer("c1"))
}

func TestConnectionManagerCloseProduct(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	notifier := NewWebSocketNotifier(cm)
	a := &fakeConn{customerID: "c1", productID: "p1"}
	b := &fakeConn{customerID: "c1", productID: "p2"}
	require.NoError(t, cm.RegisterConnection("c1", "p1", a))
	require.NoError(t, cm.RegisterConnection("c1", "p2", b))

	require.NoError(t, notifier.CloseProduct(context.Background(), "p1"))
	assert.True(t, a.closed)
	assert.False(t, b.closed)
	assert.Empty(t, cm.GetConnectionsForProduct("p1"))
	assert.Len(t, cm.GetConnectionsForCustomer("c1"), 1)

	assert.NoError(t, notifier.CloseProduct(context.Background(), "unknown"))
}

func newTestServer(t *testing.T) (*httptest.Server, *ConnectionManager) {
	t.Helper()
	return newTestServerWithOrigins(t, nil)
}

func newTestServerWithOrigins(t *testing.T, allowedOrigins []string) (*httptest.Server, *ConnectionManager) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	end := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, store.Products().CreateProduct(ctx, &domain.Product{
		ID: "p1", ProductType: domain.ProductAuction, StartPrice: 20, AvailableEndDateTimeUTC: &end,
	}))
	require.NoError(t, store.Products().CreateProduct(ctx, &domain.Product{
		ID: "ended", ProductType: domain.ProductAuction, AvailableEndDateTimeUTC: &past,
	}))
	require.NoError(t, store.Products().CreateProduct(ctx, &domain.Product{
		ID: "chair", ProductType: domain.ProductSimple,
	}))

	cm := NewConnectionManager(logger.NewNop())
	handler := NewWebSocketHandler(store.Products(), cm, allowedOrigins, logger.NewNop())

	router := mux.NewRouter()
	router.HandleFunc("/ws/products/{productID}", handler.HandleConnection)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, cm
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func TestHandleConnectionRejects(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing customer", "/ws/products/p1", http.StatusBadRequest},
		{"unknown product", "/ws/products/nope?customer_id=c1", http.StatusNotFound},
		{"ended auction", "/ws/products/ended?customer_id=c1", http.StatusForbidden},
		{"simple product", "/ws/products/chair?customer_id=c1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, tt.path), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestHandleConnectionChecksOrigin(t *testing.T) {
	server, cm := newTestServerWithOrigins(t, []string{"https://shop.example.com"})

	tests := []struct {
		name     string
		customer string
		origin   string
		allowed  bool
	}{
		{name: "configured origin", customer: "c1", origin: "https://shop.example.com", allowed: true},
		{name: "no origin header", customer: "c2", allowed: true},
		{name: "foreign origin", customer: "c3", origin: "https://evil.example.com", allowed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/products/p1?customer_id="+tt.customer), header)
			if !tt.allowed {
				require.Error(t, err)
				require.NotNil(t, resp)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				assert.Empty(t, cm.GetConnectionsForCustomer(tt.customer))
				return
			}
			require.NoError(t, err)
			defer conn.Close()
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var state map[string]interface{}
			require.NoError(t, conn.ReadJSON(&state))
			assert.Equal(t, "product_state", state["type"])
		})
	}
}

func TestHandleConnectionStreamsProductMessages(t *testing.T) {
	server, cm := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/products/p1?customer_id=c1"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var state map[string]interface{}
	require.NoError(t, conn.ReadJSON(&state))
	assert.Equal(t, "product_state", state["type"])
	assert.Equal(t, 20.0, state["current_price"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	require.Len(t, cm.GetConnectionsForProduct("p1"), 1)
	require.NoError(t, cm.BroadcastToProduct("p1", map[string]interface{}{"type": "bid_placed", "amount": 25}))
	var placed map[string]interface{}
	require.NoError(t, conn.ReadJSON(&placed))
	assert.Equal(t, "bid_placed", placed["type"])

	require.NoError(t, cm.CloseAndUnregisterConnections("p1"))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHandleConnectionUnregistersOnClientClose(t *testing.T) {
	server, cm := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/products/p1?customer_id=c1"), nil)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage() // product state, sent once registered
	require.NoError(t, err)
	require.Len(t, cm.GetConnectionsForCustomer("c1"), 1)

	conn.Close()
	assert.Eventually(t, func() bool {
		return len(cm.GetConnectionsForCustomer("c1")) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
