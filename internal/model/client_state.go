package model

import "time"

// ClientState is a durable key/value entry of client-side state.
type ClientState struct {
	Key       string    `gorm:"primaryKey;column:state_key;size:128"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
