package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, username, role, permitted, is_online, last_seen, created_at`

// CreateUser inserts a new account. ID and CreatedAt are filled in when empty.
func (db *DB) CreateUser(ctx context.Context, u *User) error {
	if err := ValidateUsername(u.Username); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, username, role, permitted, is_online, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Role, u.Permitted, u.IsOnline, toMillis(u.LastSeen), toMillis(u.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %q: %w", u.Username, ErrUsernameTaken)
	}
	return err
}

// FindUserByUsername returns the account with the given username, or nil if none.
func (db *DB) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return db.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// FindUserByID returns the account with the given id, or nil if none.
func (db *DB) FindUserByID(ctx context.Context, id string) (*User, error) {
	return db.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (db *DB) findUser(ctx context.Context, query string, arg string) (*User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers returns all accounts ordered by username.
func (db *DB) ListUsers(ctx context.Context) ([]User, error) {
	return db.listUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
}

// ListRecipients returns permitted non-admin accounts, the audience of announcements.
func (db *DB) ListRecipients(ctx context.Context) ([]User, error) {
	return db.listUsers(ctx, `SELECT `+userColumns+` FROM users
		WHERE permitted = 1 AND role != 'admin' ORDER BY username`)
}

func (db *DB) listUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetUserPermitted opens or closes the messaging gate for a user.
// Returns sql.ErrNoRows when the username does not exist.
func (db *DB) SetUserPermitted(ctx context.Context, username string, permitted bool) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET permitted = ? WHERE username = ?`, permitted, username)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateUserPresence records the online flag and last-seen time of a user.
func (db *DB) UpdateUserPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?`,
		online, toMillis(lastSeen), id)
	return err
}

// ResetPresence clears every online flag. A daemon that did not shut down
// cleanly leaves flags set for connections that no longer exist.
func (db *DB) ResetPresence(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE users SET is_online = 0 WHERE is_online = 1`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// OnlineCount returns the number of users flagged online.
func (db *DB) OnlineCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_online = 1`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var lastSeen, createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.Role, &u.Permitted, &u.IsOnline, &lastSeen, &createdAt); err != nil {
		return nil, err
	}
	u.LastSeen = fromMillis(lastSeen)
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}
