// Package ingest buffers decoded realtime events per category until consumers
// acknowledge them, and keeps the ledger used to deduplicate notifications.
package ingest

import (
	"sync"

	"kitchen-dashboard/internal/event"
	"kitchen-dashboard/internal/model"
)

// Category groups events that consumers acknowledge together.
type Category string

const (
	CategoryNewOrder    Category = "new_order"
	CategoryOrderStatus Category = "order_status"
	CategoryTableStatus Category = "table_status"
	CategoryPayment     Category = "payment"
	CategoryItemAction  Category = "item_action"
)

// Categories lists every category.
var Categories = []Category{
	CategoryNewOrder,
	CategoryOrderStatus,
	CategoryTableStatus,
	CategoryPayment,
	CategoryItemAction,
}

// CategoryOf maps an event to its category.
func CategoryOf(ev event.Event) Category {
	switch ev.Type() {
	case event.TypeNewOrder:
		return CategoryNewOrder
	case event.TypeOrderStatusUpdated:
		return CategoryOrderStatus
	case event.TypeTableStatusUpdated:
		return CategoryTableStatus
	case event.TypePaymentRequested:
		return CategoryPayment
	default:
		return CategoryItemAction
	}
}

// Ingestor holds accepted events until the matching Clear. Reads are
// at-least-once: whatever is not cleared is returned again by Pending.
type Ingestor struct {
	mu       sync.Mutex
	buffers  map[Category][]event.Event
	buffered map[string]struct{} // orderIds of buffered new orders
}

// NewIngestor creates an empty ingestor.
func NewIngestor() *Ingestor {
	return &Ingestor{
		buffers:  make(map[Category][]event.Event),
		buffered: make(map[string]struct{}),
	}
}

// Ingest buffers ev. A new order whose orderId is already buffered is dropped
// and Ingest returns false.
func (in *Ingestor) Ingest(ev event.Event) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	cat := CategoryOf(ev)
	if no, ok := ev.(event.NewOrder); ok {
		if _, dup := in.buffered[no.OrderID]; dup {
			return false
		}
		in.buffered[no.OrderID] = struct{}{}
	}
	in.buffers[cat] = append(in.buffers[cat], ev)
	return true
}

// IngestBacklog buffers orders fetched over REST as new-order events and
// returns how many were accepted.
func (in *Ingestor) IngestBacklog(orders []model.Order, meta event.Meta) int {
	accepted := 0
	for _, o := range orders {
		ev := event.NewOrder{
			Meta:        meta,
			OrderID:     o.ID,
			TableName:   o.TableName,
			Status:      o.Status,
			Items:       o.Items,
			TotalAmount: o.TotalAmount,
			CreatedAt:   o.CreatedAt,
		}
		if ev.OrderID == "" {
			continue
		}
		if in.Ingest(ev) {
			accepted++
		}
	}
	return accepted
}

// Pending returns a copy of the buffered events of cat in arrival order.
func (in *Ingestor) Pending(cat Category) []event.Event {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]event.Event, len(in.buffers[cat]))
	copy(out, in.buffers[cat])
	return out
}

// Len returns the number of buffered events of cat.
func (in *Ingestor) Len(cat Category) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.buffers[cat])
}

// Clear acknowledges every buffered event of cat.
func (in *Ingestor) Clear(cat Category) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if cat == CategoryNewOrder {
		in.buffered = make(map[string]struct{})
	}
	delete(in.buffers, cat)
}

// Reset drops all buffered events.
func (in *Ingestor) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.buffers = make(map[Category][]event.Event)
	in.buffered = make(map[string]struct{})
}
