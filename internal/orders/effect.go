package orders

import (
	"fmt"

	"kitchen-dashboard/internal/model"
)

// Effect is an outbound request produced by a state transition. Effects are
// executed by a runner outside the store.
type Effect interface {
	fmt.Stringer
	isEffect()
}

// RequestStatus asks the backend to move an order to Status.
type RequestStatus struct {
	OrderID string
	Status  model.OrderStatus
	Reason  string
}

func (RequestStatus) isEffect() {}

func (r RequestStatus) String() string {
	return fmt.Sprintf("request status %s for order %s (%s)", r.Status, r.OrderID, r.Reason)
}

// ReasonNoActiveItems marks the auto-cancel of an order whose items were all cancelled or returned.
const ReasonNoActiveItems = "no active items"
