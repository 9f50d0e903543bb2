package kitchenapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchen-dashboard/config"
	"kitchen-dashboard/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{BranchID: "b1"}
	cfg.Backend.APIURL = server.URL + "/"
	cfg.Backend.SocketURL = "ws://unused"
	cfg.Backend.Headers = map[string]string{"X-Api-Key": "secret"}
	cfg.ApplyDefaults()
	return New(cfg)
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": success, "data": data, "message": message})
}

func TestFetchPendingOrders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/branches/b1/orders/pending", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		writeEnvelope(w, http.StatusOK, true, []map[string]any{
			{"orderId": "o1", "tableName": "T3", "status": "admin_approved", "items": []map[string]any{{"name": "Rice", "quantity": 2}}},
		}, "")
	})

	orders, err := client.FetchPendingOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
	assert.Equal(t, model.StatusAdminApproved, orders[0].Status)
	assert.Equal(t, 2, orders[0].Items[0].Quantity)
}

func TestUpdateOrderStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/orders/o1/status", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "canceled", body["status"])
		writeEnvelope(w, http.StatusOK, true, nil, "")
	})

	require.NoError(t, client.UpdateOrderStatus(context.Background(), "o1", model.StatusCanceled))
}

func TestCancelAndReturnItem(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"quantity":1,"reason":"burnt"}`, string(raw))
		writeEnvelope(w, http.StatusOK, true, nil, "")
	})

	req := ItemRequest{OrderID: "o1", ItemIndex: 2, Quantity: 1, Reason: "burnt"}
	require.NoError(t, client.CancelItem(context.Background(), req))
	require.NoError(t, client.ReturnItem(context.Background(), req))
	assert.Equal(t, []string{"/orders/o1/items/2/cancel", "/orders/o1/items/2/return"}, paths)
}

func TestFetchTableSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/branches/b1/tables/Patio%201/session", r.URL.EscapedPath())
		writeEnvelope(w, http.StatusOK, true, map[string]any{
			"session": map[string]any{"sessionId": "s1", "totalAmount": 30, "orderIds": []string{"o1"}},
			"orders":  []map[string]any{{"orderId": "o1", "status": "served"}},
		}, "")
	})

	snap, err := client.FetchTableSession(context.Background(), "Patio 1")
	require.NoError(t, err)
	assert.Equal(t, "Patio 1", snap.Session.TableName, "table name is filled from the request")
	assert.Equal(t, "s1", snap.Session.SessionID)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, model.StatusServed, snap.Orders[0].Status)
}

func TestGenerateInvoice(t *testing.T) {
	issued := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions/s1/invoice", r.URL.Path)
		writeEnvelope(w, http.StatusOK, true, Invoice{InvoiceNumber: "INV-1", SessionID: "s1", Total: 42, IssuedAt: issued}, "")
	})

	inv, err := client.GenerateInvoice(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "INV-1", inv.InvoiceNumber)
	assert.Equal(t, 42.0, inv.Total)
	assert.True(t, issued.Equal(inv.IssuedAt))
}

func TestErrors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusNotFound, false, nil, "order not found")
		})
		err := client.UpdateOrderStatus(context.Background(), "missing", model.StatusServed)
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "order not found", apiErr.Message)
		assert.True(t, IsNotFound(err))
	})

	t.Run("failed envelope", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusOK, false, nil, "session already closed")
		})
		err := client.CompleteSession(context.Background(), "s1", Payment{Method: "cash", Amount: 10})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "backend returned status 200: session already closed", err.Error())
		assert.False(t, IsNotFound(err))
	})

	t.Run("garbage body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		})
		_, err := client.FetchTables(context.Background())
		assert.ErrorContains(t, err, "failed to unmarshal api response")
	})

	t.Run("context cancelled", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusOK, true, nil, "")
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.FetchTables(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNew_DefaultsTimeout(t *testing.T) {
	cfg := &config.Config{BranchID: "b1"}
	cfg.Backend.APIURL = "http://backend"
	cfg.Backend.HTTPProxy = "://bad"
	cfg.ApplyDefaults()

	client := New(cfg)
	assert.Equal(t, 15*time.Second, client.client.Timeout)
	assert.Equal(t, "b1", client.BranchID())
}
