package bus

import "time"

// Event kinds published by the messaging core.
const (
	KindConnState        = "conn.state_changed"
	KindPresenceOnline   = "presence.online"
	KindPresenceOffline  = "presence.offline"
	KindMessageCreated   = "message.created"
	KindMessageDelivered = "message.delivered"
	KindMessageRead      = "message.read"
	KindBroadcastSent    = "broadcast.sent"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// PresencePayload accompanies presence.* events.
type PresencePayload struct {
	Username string
	LastSeen time.Time
}

// MessagePayload accompanies message.* events.
type MessagePayload struct {
	MessageID string
	Sender    string
	Recipient string
}
