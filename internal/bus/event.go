package bus

import "time"

// Event is one entry on a session's event feed. Kind uses dotted names
// ("chats.upsert", "connection.update"); subscribers filter by prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent returns an event stamped with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
