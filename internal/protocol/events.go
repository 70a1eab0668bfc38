// Package protocol defines the JSON frames exchanged over the messaging channel.
// Every frame is {"event": <name>, "data": {...}}.
package protocol

import "encoding/json"

// Inbound event names.
const (
	EventSendMessage    = "send_message"
	EventMarkAsRead     = "mark_as_read"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventCallInvitation = "call_invitation"
	EventCallAccepted   = "call_accepted"
	EventCallRejected   = "call_rejected"
	EventCallEnded      = "call_ended"
)

// Outbound event names.
const (
	EventMessageSent    = "message_sent"
	EventReceiveMessage = "receive_message"
	EventMessageError   = "message_error"
	EventMessageRead    = "message_read"
	EventUserTyping     = "user_typing"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventAdminBroadcast = "admin_broadcast"
)

// Call types accepted on call_invitation.
const (
	CallAudio = "audio"
	CallVideo = "video"
)

// Frame is the envelope of every message on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded client event. The concrete type is the tag.
type Inbound interface {
	EventName() string
}

// SendMessage asks the server to persist and deliver a direct message.
type SendMessage struct {
	Recipient   string `json:"recipient"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
}

func (SendMessage) EventName() string { return EventSendMessage }

// MarkAsRead acknowledges that the reader has seen a message.
type MarkAsRead struct {
	MessageID string `json:"messageId"`
}

func (MarkAsRead) EventName() string { return EventMarkAsRead }

// Typing carries typing and stop_typing.
type Typing struct {
	Recipient string `json:"recipient"`
	IsTyping  bool   `json:"-"`
}

func (t Typing) EventName() string {
	if t.IsTyping {
		return EventTyping
	}
	return EventStopTyping
}

// CallSignal carries call_invitation, call_accepted, call_rejected and call_ended.
// Caller is always overwritten with the authenticated sender.
type CallSignal struct {
	Kind      string `json:"-"`
	Caller    string `json:"caller,omitempty"`
	Recipient string `json:"recipient"`
	CallType  string `json:"callType,omitempty"`
	RoomName  string `json:"roomName,omitempty"`
}

func (c CallSignal) EventName() string { return c.Kind }
