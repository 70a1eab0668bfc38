package hub

import (
	"sync"

	"github.com/matheus3301/dmchat/internal/store"
)

type entry struct {
	conn Conn
	user *store.User
}

// Registry maps usernames to their live connections. The newest connection of
// a user is its primary delivery target; the user is reachable while at least
// one connection remains.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]entry // oldest first
	fanout  bool
}

// NewRegistry creates an empty registry. With fanout set, Targets returns
// every device of a user instead of only the newest.
func NewRegistry(fanout bool) *Registry {
	return &Registry{
		entries: make(map[string][]entry),
		fanout:  fanout,
	}
}

// Register makes c the newest connection of user. first reports that the user
// had no connections before.
func (r *Registry) Register(user *store.User, c Conn) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[user.Username]
	first = len(list) == 0
	list = removeConn(list, c)
	r.entries[user.Username] = append(list, entry{conn: c, user: user})
	return first
}

// Unregister removes c from username's connections. removed is false when c
// was not registered, which makes stale and repeated disconnects no-ops.
// last reports that username has no connections left.
func (r *Registry) Unregister(username string, c Conn) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.entries[username]
	if !ok {
		return false, false
	}
	rest := removeConn(list, c)
	if len(rest) == len(list) {
		return false, false
	}
	if len(rest) == 0 {
		delete(r.entries, username)
		return true, true
	}
	r.entries[username] = rest
	return true, false
}

// Lookup returns the newest connection of username.
func (r *Registry) Lookup(username string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.entries[username]
	if len(list) == 0 {
		return nil, false
	}
	return list[len(list)-1].conn, true
}

// Connections returns every connection of username, oldest first.
func (r *Registry) Connections(username string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.entries[username]
	conns := make([]Conn, len(list))
	for i, e := range list {
		conns[i] = e.conn
	}
	return conns
}

// Targets returns the connections a live push to username goes to.
func (r *Registry) Targets(username string) []Conn {
	if r.fanout {
		return r.Connections(username)
	}
	if c, ok := r.Lookup(username); ok {
		return []Conn{c}
	}
	return nil
}

// Others returns every connection that does not belong to username.
func (r *Registry) Others(username string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []Conn
	for name, list := range r.entries {
		if name == username {
			continue
		}
		for _, e := range list {
			conns = append(conns, e.conn)
		}
	}
	return conns
}

// Online reports whether username has at least one connection.
func (r *Registry) Online(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[username]) > 0
}

// Devices returns the number of connections of username.
func (r *Registry) Devices(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[username])
}

// snapshot returns every entry, each user's connections oldest first.
func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []entry
	for _, list := range r.entries {
		all = append(all, list...)
	}
	return all
}

// Stats returns the number of online users and live connections.
func (r *Registry) Stats() (users, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, list := range r.entries {
		conns += len(list)
	}
	return len(r.entries), conns
}

func removeConn(list []entry, c Conn) []entry {
	for i, e := range list {
		if e.conn == c {
			out := make([]entry, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...)
		}
	}
	return list
}
