package model

// TableStatus is the occupancy state of a dining table.
type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
	TableCleaning  TableStatus = "cleaning"
)

// Table is an entry of the table list view.
type Table struct {
	ID     string      `json:"tableId,omitempty"`
	Name   string      `json:"tableName"`
	Status TableStatus `json:"status"`
}

// TableSession is the occupancy of one table, from seating until payment completes.
type TableSession struct {
	TableName        string   `json:"tableName"`
	SessionID        string   `json:"sessionId"`
	TotalAmount      float64  `json:"totalAmount"`
	PaymentRequested bool     `json:"paymentRequested"`
	OrderIDs         []string `json:"orderIds"`
	// Optimistic is set when the session was opened locally and not yet confirmed by the backend.
	Optimistic bool `json:"optimistic"`
}

// HasOrder reports whether the session already references the order.
func (s *TableSession) HasOrder(orderID string) bool {
	for _, id := range s.OrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}
