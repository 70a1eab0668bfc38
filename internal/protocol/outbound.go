package protocol

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/dmchat/internal/store"
)

// Outbound is a server event ready to be written to a connection.
type Outbound struct {
	Event string
	Data  any
}

// MarshalJSON encodes the event as a Frame.
func (o Outbound) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{o.Event, o.Data})
}

// MessageView is the wire form of a persisted message.
type MessageView struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	Recipient   string    `json:"recipient"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Read        bool      `json:"read"`
	Delivered   bool      `json:"delivered"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ViewOf converts a store message into its wire form.
func ViewOf(m *store.Message) MessageView {
	return MessageView{
		ID:          m.ID,
		Sender:      m.Sender,
		Recipient:   m.Recipient,
		Content:     m.Content,
		MessageType: string(m.Type),
		Read:        m.Read,
		Delivered:   m.Delivered,
		CreatedAt:   m.CreatedAt,
	}
}

type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type ReadPayload struct {
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

type TypingPayload struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type PresencePayload struct {
	Username string     `json:"username"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type CallPayload struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
	CallType  string `json:"callType,omitempty"`
	RoomName  string `json:"roomName,omitempty"`
}

type BroadcastPayload struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"createdAt"`
}

func MessageSent(m *store.Message) Outbound {
	return Outbound{Event: EventMessageSent, Data: ViewOf(m)}
}

func ReceiveMessage(m *store.Message) Outbound {
	return Outbound{Event: EventReceiveMessage, Data: ViewOf(m)}
}

// MessageError reports a failed request to the connection that sent it.
// cause may be nil.
func MessageError(message string, cause error) Outbound {
	p := ErrorPayload{Message: message}
	if cause != nil {
		p.Error = cause.Error()
	}
	return Outbound{Event: EventMessageError, Data: p}
}

func MessageRead(messageID, readBy string) Outbound {
	return Outbound{Event: EventMessageRead, Data: ReadPayload{MessageID: messageID, ReadBy: readBy}}
}

func UserTyping(username string, isTyping bool) Outbound {
	return Outbound{Event: EventUserTyping, Data: TypingPayload{Username: username, IsTyping: isTyping}}
}

func UserOnline(username string) Outbound {
	return Outbound{Event: EventUserOnline, Data: PresencePayload{Username: username, IsOnline: true}}
}

func UserOffline(username string, lastSeen time.Time) Outbound {
	return Outbound{Event: EventUserOffline, Data: PresencePayload{Username: username, IsOnline: false, LastSeen: &lastSeen}}
}

// CallEvent forwards a call control signal under its own event name.
func CallEvent(c CallSignal) Outbound {
	return Outbound{Event: c.Kind, Data: CallPayload{
		Caller:    c.Caller,
		Recipient: c.Recipient,
		CallType:  c.CallType,
		RoomName:  c.RoomName,
	}}
}

func AdminBroadcast(m *store.Message) Outbound {
	return Outbound{Event: EventAdminBroadcast, Data: BroadcastPayload{
		ID:          m.ID,
		Sender:      m.Sender,
		Content:     m.Content,
		MessageType: string(m.Type),
		Type:        "broadcast",
		CreatedAt:   m.CreatedAt,
	}}
}
