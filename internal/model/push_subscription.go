package model

import "time"

// PushSubscription holds the information for a browser push subscription
// that wants a cue for the listed notification types.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	Types     []string  `gorm:"serializer:json"`
	CreatedAt time.Time `gorm:"not null"`
}

// Wants reports whether the subscription asked for cues of type t.
// An empty list subscribes to every type.
func (s *PushSubscription) Wants(t NotificationType) bool {
	if len(s.Types) == 0 {
		return true
	}
	for _, v := range s.Types {
		if v == string(t) {
			return true
		}
	}
	return false
}
