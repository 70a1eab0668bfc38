package store

import "time"

// Roles a user account can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// SystemSender is the reserved sender name of administrator announcements.
const SystemSender = "ADMIN"

// MessageType enumerates the kinds of message content.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
	TypeAudio MessageType = "audio"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeAudio:
		return true
	}
	return false
}

// User is the subset of an account the messaging core reads and writes.
type User struct {
	ID        string
	Username  string
	Role      string
	Permitted bool // the moderation gate: may send and receive messages
	IsOnline  bool
	LastSeen  time.Time
	CreatedAt time.Time
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Message is a persisted direct message. Only Read and Delivered ever change,
// and only from false to true.
type Message struct {
	ID        string
	Sender    string
	Recipient string
	Content   string
	Type      MessageType
	Read      bool
	Delivered bool
	CreatedAt time.Time
}
