package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustCreateUser(t *testing.T, db *DB, username string) *User {
	t.Helper()
	u := &User{Username: username, Permitted: true}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}

	version, dirty, err := db.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 || dirty {
		t.Errorf("SchemaVersion() = %d, %v; want 1, false", version, dirty)
	}
}

func TestMessageTypeConstraint(t *testing.T) {
	db := testDB(t)
	_, err := db.Exec(`INSERT INTO messages (id, sender, recipient, content, message_type, created_at)
		VALUES ('x', 'a', 'b', 'c', 'video', 1)`)
	if err == nil {
		t.Error("insert with unknown message_type should fail the CHECK constraint")
	}
}

func TestCreateAndFindUser(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	alice := mustCreateUser(t, db, "alice")
	if alice.ID == "" {
		t.Fatal("CreateUser did not assign an id")
	}

	byName, err := db.FindUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if byName == nil || byName.ID != alice.ID {
		t.Fatalf("FindUserByUsername = %+v, want id %s", byName, alice.ID)
	}
	if byName.Role != RoleUser || !byName.Permitted {
		t.Errorf("role/permitted = %s/%v, want user/true", byName.Role, byName.Permitted)
	}

	byID, err := db.FindUserByID(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID == nil || byID.Username != "alice" {
		t.Errorf("FindUserByID = %+v, want alice", byID)
	}

	missing, err := db.FindUserByUsername(ctx, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing user, got %+v", missing)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	db := testDB(t)
	mustCreateUser(t, db, "alice")

	err := db.CreateUser(context.Background(), &User{Username: "alice"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "alice", false},
		{"valid mixed case", "Alice_99", false},
		{"valid min length", "abc", false},
		{"valid max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"too short", "ab", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"space", "al ice", true},
		{"hyphen", "al-ice", true},
		{"reserved", "ADMIN", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestPresenceAndPermission(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	alice := mustCreateUser(t, db, "alice")

	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := db.UpdateUserPresence(ctx, alice.ID, true, seen); err != nil {
		t.Fatal(err)
	}
	u, err := db.FindUserByID(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !u.IsOnline || !u.LastSeen.Equal(seen) {
		t.Errorf("presence = %v/%v, want true/%v", u.IsOnline, u.LastSeen, seen)
	}
	if n, _ := db.OnlineCount(ctx); n != 1 {
		t.Errorf("OnlineCount = %d, want 1", n)
	}

	if err := db.SetUserPermitted(ctx, "alice", false); err != nil {
		t.Fatal(err)
	}
	u, _ = db.FindUserByID(ctx, alice.ID)
	if u.Permitted {
		t.Error("permitted = true after SetUserPermitted(false)")
	}
	if err := db.SetUserPermitted(ctx, "nobody", true); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("SetUserPermitted(nobody) err = %v, want sql.ErrNoRows", err)
	}
}

func TestResetPresence(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	alice := mustCreateUser(t, db, "alice")
	bob := mustCreateUser(t, db, "bob")
	mustCreateUser(t, db, "carol")

	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, id := range []string{alice.ID, bob.ID} {
		if err := db.UpdateUserPresence(ctx, id, true, seen); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.ResetPresence(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("ResetPresence() cleared %d, want 2", n)
	}
	if count, _ := db.OnlineCount(ctx); count != 0 {
		t.Errorf("OnlineCount = %d after reset, want 0", count)
	}
	u, _ := db.FindUserByID(ctx, alice.ID)
	if !u.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v kept", u.LastSeen, seen)
	}
}

func TestListRecipientsSkipsAdminsAndBlocked(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustCreateUser(t, db, "alice")
	mustCreateUser(t, db, "bob")
	if err := db.CreateUser(ctx, &User{Username: "root", Role: RoleAdmin, Permitted: true}); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateUser(ctx, &User{Username: "mallory", Permitted: false}); err != nil {
		t.Fatal(err)
	}

	users, err := db.ListRecipients(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Errorf("ListRecipients = %+v, want alice, bob", users)
	}

	all, err := db.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("ListUsers returned %d users, want 4", len(all))
	}
}

func TestCreateAndGetMessage(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	m := &Message{Sender: "alice", Recipient: "bob", Content: "hi"}
	if err := db.CreateMessage(ctx, m); err != nil {
		t.Fatal(err)
	}
	if m.ID == "" || m.Type != TypeText || m.CreatedAt.IsZero() {
		t.Fatalf("CreateMessage defaults not applied: %+v", m)
	}

	got, err := db.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Content != "hi" || got.Read || got.Delivered {
		t.Errorf("GetMessage = %+v, want unread undelivered hi", got)
	}
	if got.CreatedAt.UnixMilli() != m.CreatedAt.UnixMilli() {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, m.CreatedAt)
	}

	missing, err := db.GetMessage(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for missing message")
	}
}

func TestMarkMessageReadMonotonic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	m := &Message{Sender: "alice", Recipient: "bob", Content: "hi"}
	if err := db.CreateMessage(ctx, m); err != nil {
		t.Fatal(err)
	}

	changed, err := db.MarkMessageRead(ctx, m.ID)
	if err != nil || !changed {
		t.Fatalf("first MarkMessageRead = %v, %v; want true, nil", changed, err)
	}
	changed, err = db.MarkMessageRead(ctx, m.ID)
	if err != nil || changed {
		t.Errorf("second MarkMessageRead = %v, %v; want false, nil", changed, err)
	}
	changed, err = db.MarkMessageRead(ctx, "missing")
	if err != nil || changed {
		t.Errorf("MarkMessageRead(missing) = %v, %v; want false, nil", changed, err)
	}
}

func TestMarkMessagesDelivered(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		m := &Message{Sender: "alice", Recipient: "bob", Content: "hi"}
		if err := db.CreateMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}

	n, err := db.MarkMessagesDelivered(ctx, ids[:2])
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("changed = %d, want 2", n)
	}
	n, _ = db.MarkMessagesDelivered(ctx, ids)
	if n != 1 {
		t.Errorf("second pass changed = %d, want 1", n)
	}
	if n, _ := db.MarkMessagesDelivered(ctx, nil); n != 0 {
		t.Errorf("empty ids changed = %d, want 0", n)
	}
}

func TestFindMessagesBetweenChronologicalPages(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	inputs := []struct{ from, to, body string }{
		{"alice", "bob", "one"},
		{"bob", "alice", "two"},
		{"alice", "carol", "other"},
		{"alice", "bob", "three"},
	}
	for i, in := range inputs {
		m := &Message{Sender: in.from, Recipient: in.to, Content: in.body, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.CreateMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.FindMessagesBetween(ctx, "bob", "alice", 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range msgs {
		got = append(got, m.Content)
	}
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}

	page2, err := db.FindMessagesBetween(ctx, "alice", "bob", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 1 || page2[0].Content != "one" {
		t.Errorf("page 2 = %+v, want [one]", page2)
	}
}

func TestMarkConversationRead(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, body := range []string{"a", "b"} {
		if err := db.CreateMessage(ctx, &Message{Sender: "alice", Recipient: "bob", Content: body}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.CreateMessage(ctx, &Message{Sender: "bob", Recipient: "alice", Content: "reply"}); err != nil {
		t.Fatal(err)
	}

	n, err := db.MarkConversationRead(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("changed = %d, want 2", n)
	}
	msgs, _ := db.FindMessagesBetween(ctx, "alice", "bob", 1, 10)
	for _, m := range msgs {
		wantRead := m.Sender == "alice"
		if m.Read != wantRead || m.Delivered != wantRead {
			t.Errorf("message %q read/delivered = %v/%v, want %v", m.Content, m.Read, m.Delivered, wantRead)
		}
	}
	if count, _ := db.MessageCount(ctx); count != 3 {
		t.Errorf("MessageCount = %d, want 3", count)
	}
}

func TestListConversations(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{Sender: "alice", Recipient: "bob", Content: "hi bob", CreatedAt: base},
		{Sender: "bob", Recipient: "alice", Content: "hi alice", CreatedAt: base.Add(time.Minute)},
		{Sender: "bob", Recipient: "alice", Content: "you there?", CreatedAt: base.Add(2 * time.Minute)},
		{Sender: "carol", Recipient: "alice", Content: "lunch", CreatedAt: base.Add(3 * time.Minute)},
		{Sender: "carol", Recipient: "bob", Content: "not alice", CreatedAt: base.Add(4 * time.Minute)},
	}
	for i := range msgs {
		if err := db.CreateMessage(ctx, &msgs[i]); err != nil {
			t.Fatal(err)
		}
	}

	convs, err := db.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].Peer != "carol" || convs[0].LastMessage.Content != "lunch" || convs[0].UnreadCount != 1 {
		t.Errorf("first conversation = %+v", convs[0])
	}
	if convs[1].Peer != "bob" || convs[1].LastMessage.Content != "you there?" || convs[1].UnreadCount != 2 {
		t.Errorf("second conversation = %+v", convs[1])
	}
}

func TestSearchUsers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, name := range []string{"alice", "alicia", "bob", "ali_admin"} {
		mustCreateUser(t, db, name)
	}
	if err := db.SetUserPermitted(ctx, "alicia", false); err != nil {
		t.Fatal(err)
	}

	users, err := db.SearchUsers(ctx, "ali", "bob", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].Username != "ali_admin" || users[1].Username != "alice" {
		t.Errorf("SearchUsers(ali) = %+v", users)
	}

	// The underscore is literal, not a wildcard.
	users, err = db.SearchUsers(ctx, "i_", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Username != "ali_admin" {
		t.Errorf("SearchUsers(i_) = %+v", users)
	}

	users, err = db.SearchUsers(ctx, "ali", "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range users {
		if u.Username == "alice" {
			t.Error("excluded user returned")
		}
	}
}
