// Package event models the realtime events pushed by the backend as a tagged
// union: one struct per event type, validated when decoded.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kitchen-dashboard/internal/model"
)

// Type is the wire name of an inbound event.
type Type string

const (
	TypeNewOrder           Type = "new_order"
	TypeOrderStatusUpdated Type = "order_status_updated"
	TypeTableStatusUpdated Type = "table_status_updated"
	TypePaymentRequested   Type = "payment_requested"
	TypeItemCancelled      Type = "order_item_cancelled"
	TypeItemReturned       Type = "order_item_returned"
)

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrMalformed   = errors.New("malformed event payload")
)

// Event is implemented by every inbound event variant.
type Event interface {
	Type() Type
	Received() time.Time
}

// Meta carries the local receipt time of an event.
type Meta struct {
	ReceivedAt time.Time `json:"-"`
}

// Received returns the local receipt time.
func (m Meta) Received() time.Time { return m.ReceivedAt }

// NewOrder introduces an order.
type NewOrder struct {
	Meta
	OrderID     string            `json:"orderId"`
	TableName   string            `json:"tableName"`
	Status      model.OrderStatus `json:"status"`
	Items       []model.Item      `json:"items"`
	TotalAmount float64           `json:"totalAmount"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func (NewOrder) Type() Type { return TypeNewOrder }

// Order converts the event into the order it describes.
func (e NewOrder) Order() model.Order {
	items := make([]model.Item, len(e.Items))
	copy(items, e.Items)
	o := model.Order{
		ID:          e.OrderID,
		TableName:   e.TableName,
		Status:      e.Status,
		Items:       items,
		TotalAmount: e.TotalAmount,
		CreatedAt:   e.CreatedAt,
	}
	if !e.CreatedAt.IsZero() {
		o.StatusTimestamps = map[model.OrderStatus]time.Time{e.Status: e.CreatedAt}
	}
	return o
}

// OrderStatusUpdated moves an order to a new status.
type OrderStatusUpdated struct {
	Meta
	OrderID   string            `json:"orderId"`
	TableName string            `json:"tableName"`
	Status    model.OrderStatus `json:"status"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
}

func (OrderStatusUpdated) Type() Type { return TypeOrderStatusUpdated }

// EffectiveTime is the server timestamp when present, otherwise the local receipt time.
func (e OrderStatusUpdated) EffectiveTime() time.Time {
	if e.Timestamp != nil && !e.Timestamp.IsZero() {
		return *e.Timestamp
	}
	return e.ReceivedAt
}

// TableStatusUpdated changes the status of a table.
type TableStatusUpdated struct {
	Meta
	TableID   *string           `json:"tableId,omitempty"`
	TableName string            `json:"tableName"`
	Status    model.TableStatus `json:"status"`
}

func (TableStatusUpdated) Type() Type { return TypeTableStatusUpdated }

// PaymentRequested flags a table session as waiting for payment.
type PaymentRequested struct {
	Meta
	SessionID   string  `json:"sessionId"`
	TableName   string  `json:"tableName"`
	TotalAmount float64 `json:"totalAmount"`
}

func (PaymentRequested) Type() Type { return TypePaymentRequested }

// ItemActionKind distinguishes cancellations from returns.
type ItemActionKind string

const (
	ItemCancelled ItemActionKind = "cancelled"
	ItemReturned  ItemActionKind = "returned"
)

// ItemAction reduces the effective quantity of one order item.
type ItemAction struct {
	Meta
	Kind            ItemActionKind `json:"-"`
	OrderID         string         `json:"orderId"`
	TableName       string         `json:"tableName"`
	ItemIndex       *int           `json:"itemIndex"`
	Quantity        int            `json:"quantity"`
	Reason          string         `json:"reason"`
	NewOrderTotal   float64        `json:"newOrderTotal"`
	NewSessionTotal *float64       `json:"newSessionTotal,omitempty"`
}

func (e ItemAction) Type() Type {
	if e.Kind == ItemReturned {
		return TypeItemReturned
	}
	return TypeItemCancelled
}

// Index returns the targeted item index, or -1 when absent.
func (e ItemAction) Index() int {
	if e.ItemIndex == nil {
		return -1
	}
	return *e.ItemIndex
}

// IsKnown reports whether name is an inbound event this package decodes.
func IsKnown(name string) bool {
	switch Type(name) {
	case TypeNewOrder, TypeOrderStatusUpdated, TypeTableStatusUpdated,
		TypePaymentRequested, TypeItemCancelled, TypeItemReturned:
		return true
	}
	return false
}

// Decode parses and validates the payload of the named event.
func Decode(name string, data json.RawMessage, receivedAt time.Time) (Event, error) {
	meta := Meta{ReceivedAt: receivedAt}

	switch Type(name) {
	case TypeNewOrder:
		var e NewOrder
		if err := unmarshal(name, data, &e); err != nil {
			return nil, err
		}
		e.Meta = meta
		if e.OrderID == "" {
			return nil, fmt.Errorf("%w: %s without orderId", ErrMalformed, name)
		}
		for i, it := range e.Items {
			if it.Quantity < 0 || it.CancelledQuantity < 0 || it.ReturnedQuantity < 0 {
				return nil, fmt.Errorf("%w: %s item %d has a negative quantity", ErrMalformed, name, i)
			}
			if it.CancelledQuantity+it.ReturnedQuantity > it.Quantity {
				return nil, fmt.Errorf("%w: %s item %d deducts more than its quantity", ErrMalformed, name, i)
			}
		}
		if e.Status == "" {
			e.Status = model.StatusPending
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = receivedAt
		}
		return e, nil

	case TypeOrderStatusUpdated:
		var e OrderStatusUpdated
		if err := unmarshal(name, data, &e); err != nil {
			return nil, err
		}
		e.Meta = meta
		if e.OrderID == "" || e.Status == "" {
			return nil, fmt.Errorf("%w: %s requires orderId and status", ErrMalformed, name)
		}
		return e, nil

	case TypeTableStatusUpdated:
		var e TableStatusUpdated
		if err := unmarshal(name, data, &e); err != nil {
			return nil, err
		}
		e.Meta = meta
		if e.TableName == "" || e.Status == "" {
			return nil, fmt.Errorf("%w: %s requires tableName and status", ErrMalformed, name)
		}
		return e, nil

	case TypePaymentRequested:
		var e PaymentRequested
		if err := unmarshal(name, data, &e); err != nil {
			return nil, err
		}
		e.Meta = meta
		if e.SessionID == "" || e.TableName == "" {
			return nil, fmt.Errorf("%w: %s requires sessionId and tableName", ErrMalformed, name)
		}
		return e, nil

	case TypeItemCancelled, TypeItemReturned:
		var e ItemAction
		if err := unmarshal(name, data, &e); err != nil {
			return nil, err
		}
		e.Meta = meta
		e.Kind = ItemCancelled
		if Type(name) == TypeItemReturned {
			e.Kind = ItemReturned
		}
		if e.OrderID == "" {
			return nil, fmt.Errorf("%w: %s without orderId", ErrMalformed, name)
		}
		if e.ItemIndex == nil || *e.ItemIndex < 0 {
			return nil, fmt.Errorf("%w: %s without a valid itemIndex", ErrMalformed, name)
		}
		if e.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %s with non-positive quantity %d", ErrMalformed, name, e.Quantity)
		}
		return e, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

func unmarshal(name string, data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s has an empty payload", ErrMalformed, name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return nil
}
