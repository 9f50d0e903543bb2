package transport

import (
	"encoding/json"
	"time"
)

// AckEvent is the event name of request acknowledgements.
const AckEvent = "ack"

// Frame is one JSON text message on the socket. Requests carry an ID that the
// matching ack echoes.
type Frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a server push together with its local receipt time.
type Inbound struct {
	Frame
	ReceivedAt time.Time
}
