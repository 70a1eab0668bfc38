package api

import (
	"time"

	"github.com/matheus3301/dmchat/internal/protocol"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type ConversationResponse struct {
	Messages   []protocol.MessageView `json:"messages"`
	Pagination Pagination             `json:"pagination"`
}

type ContactView struct {
	Username    string                `json:"username"`
	IsOnline    bool                  `json:"isOnline"`
	LastMessage *protocol.MessageView `json:"lastMessage,omitempty"`
	UnreadCount int                   `json:"unreadCount"`
}

type ContactsResponse struct {
	Contacts []ContactView `json:"contacts"`
}

type UserView struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	Permitted bool       `json:"permitted"`
	IsOnline  bool       `json:"isOnline"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	Devices   int        `json:"devices"`
}

type UsersResponse struct {
	Users []UserView `json:"users"`
}

type PresenceResponse struct {
	Username string     `json:"username"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
	Devices  int        `json:"devices"`
}

type BroadcastRequest struct {
	Message string `json:"message"`
}

type StatsResponse struct {
	OnlineUsers    int   `json:"onlineUsers"`
	Connections    int   `json:"connections"`
	StoredMessages int64 `json:"storedMessages"`
	DroppedEvents  int64 `json:"droppedEvents"`
	UptimeSeconds  int64 `json:"uptimeSeconds"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func lastSeenPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
