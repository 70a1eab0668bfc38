package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const messageColumns = `id, sender, recipient, content, message_type, read, delivered, created_at`

// CreateMessage persists a new message. ID and CreatedAt are filled in when empty.
func (db *DB) CreateMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = TypeText
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Sender, m.Recipient, m.Content, string(m.Type), m.Read, m.Delivered, toMillis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage returns a message by id, or nil if none.
func (db *DB) GetMessage(ctx context.Context, id string) (*Message, error) {
	m, err := scanMessage(db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MarkMessageRead sets the read flag. changed is false when the message was
// already read or does not exist.
func (db *DB) MarkMessageRead(ctx context.Context, id string) (changed bool, err error) {
	res, err := db.ExecContext(ctx, `UPDATE messages SET read = 1 WHERE id = ? AND read = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkMessagesDelivered sets the delivered flag on the given messages.
func (db *DB) MarkMessagesDelivered(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	res, err := db.ExecContext(ctx,
		`UPDATE messages SET delivered = 1 WHERE delivered = 0 AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkConversationRead flags every unread message from sender to recipient as
// read and delivered. Returns the number of messages changed.
func (db *DB) MarkConversationRead(ctx context.Context, sender, recipient string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET read = 1, delivered = 1
		WHERE sender = ? AND recipient = ? AND read = 0`, sender, recipient)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindMessagesBetween returns one page of the conversation between a and b in
// chronological order. Page 1 holds the most recent messages.
func (db *DB) FindMessagesBetween(ctx context.Context, a, b string, page, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, a, b, b, a, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var msgType string
	var createdAt int64
	if err := row.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Content, &msgType, &m.Read, &m.Delivered, &createdAt); err != nil {
		return nil, err
	}
	m.Type = MessageType(msgType)
	m.CreatedAt = fromMillis(createdAt)
	return &m, nil
}
