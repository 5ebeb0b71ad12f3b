package websocket

import "encoding/json"

// Inbound events
const (
	EventRegisterParticipant = "register-participant"
	EventPlayerStateChanged  = "player-state-changed"
)

// Outbound events
const (
	EventRosterUpdated        = "roster-updated"
	EventPlayerStateBroadcast = "player-state-broadcast"
)

// Message is the envelope of every frame in both directions
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// encode builds an outbound frame. payload must already be JSON.
func encode(event string, payload json.RawMessage) ([]byte, error) {
	return json.Marshal(Message{Event: event, Payload: payload})
}
