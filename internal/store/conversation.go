package store

import (
	"context"
	"strings"
)

// Conversation summarises the exchange between a user and one peer.
type Conversation struct {
	Peer        string
	LastMessage Message
	UnreadCount int
}

// ListConversations returns one entry per peer username has exchanged
// messages with, most recent first. UnreadCount counts messages to username
// that are still unread.
func (db *DB) ListConversations(ctx context.Context, username string) ([]Conversation, error) {
	rows, err := db.QueryContext(ctx, `
		WITH conv AS (
			SELECT m.rowid AS rid, m.*,
				CASE WHEN m.sender = ? THEN m.recipient ELSE m.sender END AS peer
			FROM messages m
			WHERE m.sender = ? OR m.recipient = ?
		), ranked AS (
			SELECT conv.*,
				ROW_NUMBER() OVER (PARTITION BY peer ORDER BY created_at DESC, rid DESC) AS rn,
				SUM(CASE WHEN recipient = ? AND read = 0 THEN 1 ELSE 0 END) OVER (PARTITION BY peer) AS unread
			FROM conv
		)
		SELECT peer, unread, `+messageColumns+`
		FROM ranked
		WHERE rn = 1
		ORDER BY created_at DESC, rid DESC`,
		username, username, username, username)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		var msgType string
		var createdAt int64
		m := &c.LastMessage
		if err := rows.Scan(&c.Peer, &c.UnreadCount,
			&m.ID, &m.Sender, &m.Recipient, &m.Content, &msgType, &m.Read, &m.Delivered, &createdAt); err != nil {
			return nil, err
		}
		m.Type = MessageType(msgType)
		m.CreatedAt = fromMillis(createdAt)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// SearchUsers returns permitted non-admin accounts whose username contains
// query, excluding the caller.
func (db *DB) SearchUsers(ctx context.Context, query, exclude string, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(query) + "%"
	return db.listUsers(ctx, `SELECT `+userColumns+` FROM users
		WHERE permitted = 1 AND role != 'admin' AND username != ?
			AND username LIKE ? ESCAPE '\'
		ORDER BY username
		LIMIT ?`, exclude, pattern, limit)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
