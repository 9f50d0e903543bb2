package model

import "time"

// OrderStatus is the lifecycle state of a kitchen order as asserted by the backend.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusAdminApproved  OrderStatus = "admin_approved"
	StatusInPreparation  OrderStatus = "in_preparation"
	StatusReadyForPickup OrderStatus = "ready_for_pickup"
	StatusServed         OrderStatus = "served"
	StatusCanceled       OrderStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusServed || s == StatusCanceled
}

// Item is a single line of an order.
type Item struct {
	Name              string  `json:"name"`
	Quantity          int     `json:"quantity"`
	CancelledQuantity int     `json:"cancelledQuantity"`
	ReturnedQuantity  int     `json:"returnedQuantity"`
	Price             float64 `json:"price"`
	SpiceLevel        int     `json:"spiceLevel"`
	DietaryNotes      *string `json:"dietaryNotes,omitempty"`
}

// EffectiveQuantity is the quantity still owed: ordered minus cancelled minus returned.
func (i Item) EffectiveQuantity() int {
	q := i.Quantity - i.CancelledQuantity - i.ReturnedQuantity
	if q < 0 {
		return 0
	}
	return q
}

// Order represents a kitchen order.
type Order struct {
	ID               string                    `json:"orderId"`
	TableName        string                    `json:"tableName"`
	Status           OrderStatus               `json:"status"`
	Items            []Item                    `json:"items"`
	TotalAmount      float64                   `json:"totalAmount"`
	StatusTimestamps map[OrderStatus]time.Time `json:"statusTimestamps,omitempty"`
	CreatedAt        time.Time                 `json:"createdAt"`
}

// HasActiveItems reports whether any item still has a positive effective quantity.
func (o *Order) HasActiveItems() bool {
	for _, it := range o.Items {
		if it.EffectiveQuantity() > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of the store.
func (o *Order) Clone() Order {
	c := *o
	c.Items = make([]Item, len(o.Items))
	copy(c.Items, o.Items)
	if o.StatusTimestamps != nil {
		c.StatusTimestamps = make(map[OrderStatus]time.Time, len(o.StatusTimestamps))
		for k, v := range o.StatusTimestamps {
			c.StatusTimestamps[k] = v
		}
	}
	return c
}
