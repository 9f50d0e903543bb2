package model

import (
	"encoding/json"
	"time"
)

// NotificationType categorises user-facing notifications.
type NotificationType string

const (
	NotificationNewOrder       NotificationType = "new_order"
	NotificationReadyForPickup NotificationType = "ready_for_pickup"
	NotificationPaymentRequest NotificationType = "payment_request"
)

// NotificationTypes lists every known type in display order.
var NotificationTypes = []NotificationType{
	NotificationNewOrder,
	NotificationReadyForPickup,
	NotificationPaymentRequest,
}

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Notification is a derived, user-facing record of an ingested event.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	TableName string           `json:"tableName"`
	OrderID   string           `json:"orderId,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	Processed bool             `json:"processed"`
	Data      json.RawMessage  `json:"data,omitempty"`
}
