package kitchenapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"kitchen-dashboard/internal/model"
)

// SessionSnapshot is a table session together with every order placed in it.
type SessionSnapshot struct {
	Session model.TableSession `json:"session"`
	Orders  []model.Order      `json:"orders"`
}

// ItemRequest cancels or returns part of one order item.
type ItemRequest struct {
	OrderID   string `json:"-"`
	ItemIndex int    `json:"-"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// Payment settles a table session.
type Payment struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}

// InvoiceLine is one billed item.
type InvoiceLine struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Invoice is the bill generated for a session.
type Invoice struct {
	InvoiceNumber string        `json:"invoiceNumber"`
	SessionID     string        `json:"sessionId"`
	TableName     string        `json:"tableName"`
	Lines         []InvoiceLine `json:"lines"`
	Subtotal      float64       `json:"subtotal"`
	Tax           float64       `json:"tax"`
	Total         float64       `json:"total"`
	IssuedAt      time.Time     `json:"issuedAt"`
}

// FetchPendingOrders returns every non-terminal order of the branch.
func (c *Client) FetchPendingOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, c.branchPath("/orders/pending"), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// FetchTables returns the table list of the branch.
func (c *Client) FetchTables(ctx context.Context) ([]model.Table, error) {
	var tables []model.Table
	if err := c.do(ctx, http.MethodGet, c.branchPath("/tables"), nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// UpdateTableStatus posts a new status for a table.
func (c *Client) UpdateTableStatus(ctx context.Context, tableName string, status model.TableStatus) error {
	body := map[string]any{"status": status}
	return c.do(ctx, http.MethodPost, c.branchPath("/tables/%s/status", url.PathEscape(tableName)), body, nil)
}

// FetchTableSession returns the current session of a table.
func (c *Client) FetchTableSession(ctx context.Context, tableName string) (*SessionSnapshot, error) {
	var snap SessionSnapshot
	if err := c.do(ctx, http.MethodGet, c.branchPath("/tables/%s/session", url.PathEscape(tableName)), nil, &snap); err != nil {
		return nil, err
	}
	if snap.Session.TableName == "" {
		snap.Session.TableName = tableName
	}
	return &snap, nil
}

// UpdateOrderStatus asks the backend to move an order to status.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	body := map[string]any{"status": status}
	return c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID)+"/status", body, nil)
}

// CancelItem cancels part of an order item.
func (c *Client) CancelItem(ctx context.Context, req ItemRequest) error {
	return c.itemAction(ctx, req, "cancel")
}

// ReturnItem records a returned part of an order item.
func (c *Client) ReturnItem(ctx context.Context, req ItemRequest) error {
	return c.itemAction(ctx, req, "return")
}

func (c *Client) itemAction(ctx context.Context, req ItemRequest, action string) error {
	path := "/orders/" + url.PathEscape(req.OrderID) + "/items/" + strconv.Itoa(req.ItemIndex) + "/" + action
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// CompleteSession processes the payment of a session and closes it.
func (c *Client) CompleteSession(ctx context.Context, sessionID string, payment Payment) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/complete", payment, nil)
}

// GenerateInvoice creates (or returns the existing) invoice of a session.
func (c *Client) GenerateInvoice(ctx context.Context, sessionID string) (*Invoice, error) {
	var inv Invoice
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/invoice", nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
