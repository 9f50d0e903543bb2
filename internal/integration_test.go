package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchen-dashboard/config"
	"kitchen-dashboard/internal/db"
	"kitchen-dashboard/internal/kitchen"
	"kitchen-dashboard/internal/kitchenapi"
	"kitchen-dashboard/internal/model"
	"kitchen-dashboard/internal/notification"
	"kitchen-dashboard/internal/store"
	"kitchen-dashboard/internal/transport"
)

// backend simulates the ordering backend: a socket that acks the room
// protocol and a REST API serving pending orders.
type backend struct {
	upgrader websocket.Upgrader
	socket   *httptest.Server
	rest     *httptest.Server

	mu            sync.Mutex
	conn          *websocket.Conn
	joins         int
	pendingCalls  int
	pending       []model.Order
	statusUpdates []string
}

func newBackend(t *testing.T) *backend {
	b := &backend{upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}}
	b.socket = httptest.NewServer(http.HandlerFunc(b.serveSocket))
	b.rest = httptest.NewServer(http.HandlerFunc(b.serveREST))
	t.Cleanup(b.socket.Close)
	t.Cleanup(b.rest.Close)
	return b
}

func (b *backend) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f transport.Frame
		if json.Unmarshal(msg, &f) != nil {
			continue
		}
		ack := `{"success":true}`
		switch f.Event {
		case "joinKitchen":
			b.mu.Lock()
			b.joins++
			b.mu.Unlock()
			ack = `{"success":true,"socketCount":1}`
		case "check_room_status":
			ack = `{"success":true,"inKitchenRooms":true,"kitchenRoomClients":1}`
		}
		b.send(transport.Frame{Event: transport.AckEvent, ID: f.ID, Data: json.RawMessage(ack)})
	}
}

func (b *backend) serveREST(w http.ResponseWriter, r *http.Request) {
	var data any
	b.mu.Lock()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/branches/b1/orders/pending":
		b.pendingCalls++
		data = b.pending
	case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/status"):
		var body struct {
			Status string `json:"status"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.statusUpdates = append(b.statusUpdates, strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/orders/"), "/status")+"="+body.Status)
	case r.URL.Path == "/branches/b1/tables":
		data = []model.Table{}
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func (b *backend) send(f transport.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return
	}
	raw, _ := json.Marshal(f)
	_ = b.conn.WriteMessage(websocket.TextMessage, raw)
}

func (b *backend) push(event, data string) {
	b.send(transport.Frame{Event: event, Data: json.RawMessage(data)})
}

func (b *backend) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

func (b *backend) counts() (joins, pendingCalls int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joins, b.pendingCalls
}

func (b *backend) updates() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.statusUpdates...)
}

func (b *backend) setPending(orders []model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = orders
}

// TestKitchenLifecycle drives a full order lifecycle through the socket,
// including a dropped connection and the reconciliation after it.
func TestKitchenLifecycle(t *testing.T) {
	// --- Test Setup ---
	b := newBackend(t)

	cfg := &config.Config{BranchID: "b1"}
	cfg.Backend.SocketURL = "ws" + strings.TrimPrefix(b.socket.URL, "http")
	cfg.Backend.APIURL = b.rest.URL
	cfg.Database.DSN = "file::memory:"
	cfg.Database.MaxOpenConns = 1
	cfg.ApplyDefaults()
	cfg.Connection.ReconnectMin = 10 * time.Millisecond
	cfg.Connection.ReconnectMax = 50 * time.Millisecond
	cfg.Room.JoinThrottle = 10 * time.Millisecond
	cfg.Room.RetryDelay = 20 * time.Millisecond

	gormDB, err := db.Init(&cfg.Database)
	require.NoError(t, err)
	appStore := store.NewGormStore(gormDB)

	engine := kitchen.New(cfg, kitchen.Deps{Store: appStore, API: kitchenapi.New(cfg)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	within := func(cond func() bool, msg string) {
		t.Helper()
		require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
	}

	within(func() bool {
		joins, calls := b.counts()
		return joins == 1 && calls == 1
	}, "join and backfill after connect")
	within(func() bool { return engine.Status().Room.InRoom }, "in room")

	// --- Scenario A: an approved order notifies once ---
	t.Run("new order is notified once", func(t *testing.T) {
		order := `{"orderId":"o1","tableName":"T3","items":[{"name":"Rice","quantity":2}],"totalAmount":50}`
		b.push("new_order", order)
		b.push("new_order", order)
		b.push("order_status_updated", `{"orderId":"o1","tableName":"T3","status":"admin_approved"}`)

		within(func() bool {
			o, ok := engine.Orders().Order("o1")
			return ok && o.Status == model.StatusAdminApproved
		}, "o1 approved")

		counts := engine.Notifications().Counts()
		assert.Equal(t, 1, counts.Unread)
		assert.Len(t, engine.Orders().NeedsAttention(), 1)

		list := engine.Notifications().List(notification.Filter{Type: model.NotificationNewOrder})
		require.Len(t, list, 1)
		require.NoError(t, engine.Notifications().MarkAsProcessed(ctx, list[0].ID))

		unprocessed := false
		assert.Empty(t, engine.Notifications().List(notification.Filter{Processed: &unprocessed}))
		assert.Len(t, engine.Notifications().History(""), 1)
	})

	// --- Scenario B: cancelling every item auto-cancels the order ---
	t.Run("full cancellation requests auto-cancel", func(t *testing.T) {
		b.push("order_item_cancelled", `{"orderId":"o1","tableName":"T3","itemIndex":0,"quantity":2,"reason":"sold out","newOrderTotal":0,"newSessionTotal":0}`)

		within(func() bool { return len(b.updates()) == 1 }, "auto-cancel request")
		assert.Equal(t, []string{"o1=canceled"}, b.updates())

		b.push("order_status_updated", `{"orderId":"o1","tableName":"T3","status":"canceled"}`)
		within(func() bool { return len(engine.Orders().OrdersToPrepare()) == 0 }, "o1 leaves the prepare view")

		_, history, ok := engine.Orders().Session("T3")
		require.True(t, ok)
		assert.Len(t, history, 1)
	})

	// --- Reconnect: missed orders are fetched without duplicates ---
	t.Run("reconnect backfills missed orders", func(t *testing.T) {
		b.setPending([]model.Order{
			{ID: "o1", TableName: "T3", Status: model.StatusCanceled, Items: []model.Item{{Name: "Rice", Quantity: 2, CancelledQuantity: 2}}},
			{ID: "o2", TableName: "T4", Status: model.StatusAdminApproved, Items: []model.Item{{Name: "Tea", Quantity: 1}}, TotalAmount: 4},
		})
		b.drop()

		within(func() bool {
			joins, calls := b.counts()
			return joins == 2 && calls == 2
		}, "rejoin and one more backfill")
		within(func() bool {
			_, ok := engine.Orders().Order("o2")
			return ok
		}, "o2 merged")

		assert.Len(t, engine.Orders().OrdersToPrepare(), 1)
		_, history, _ := engine.Orders().Session("T3")
		assert.Len(t, history, 1, "o1 is not duplicated")

		within(func() bool {
			return len(engine.Notifications().List(notification.Filter{Type: model.NotificationNewOrder})) == 2
		}, "o2 notified")
		assert.False(t, engine.Status().LedgerResetPending)
		assert.Equal(t, []string{"o1=canceled"}, b.updates(), "no second auto-cancel")
	})

	// --- Persistence: the list survives a restart ---
	t.Run("notifications are persisted", func(t *testing.T) {
		raw, err := appStore.LoadState(ctx, cfg.Notifications.StorageKey)
		require.NoError(t, err)
		var saved []model.Notification
		require.NoError(t, json.Unmarshal(raw, &saved))
		assert.Len(t, saved, 2)
		assert.Equal(t, "o2", saved[0].OrderID)
	})
}
