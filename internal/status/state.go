package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/dmchat/internal/bus"
)

// State represents the lifecycle state of one client connection.
type State string

const (
	Connecting    State = "CONNECTING"
	Authenticated State = "AUTHENTICATED"
	Online        State = "ONLINE"
	Offline       State = "OFFLINE"
)

// validTransitions defines allowed state transitions. Offline is terminal.
var validTransitions = map[State][]State{
	Connecting:    {Authenticated, Offline},
	Authenticated: {Online, Offline},
	Online:        {Offline},
}

// Machine tracks and enforces the state of a single connection.
type Machine struct {
	mu       sync.RWMutex
	connID   string
	username string
	current  State
	bus      *bus.Bus
}

// NewMachine creates a connection state machine starting in Connecting.
func NewMachine(connID string, b *bus.Bus) *Machine {
	return &Machine{
		connID:  connID,
		current: Connecting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Authenticate binds the verified username and moves to Authenticated.
func (m *Machine) Authenticate(username string) error {
	m.mu.Lock()
	m.username = username
	m.mu.Unlock()
	return m.Transition(Authenticated)
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindConnState,
			Timestamp: time.Now(),
			Payload: StatusChange{
				ConnID:   m.connID,
				Username: m.username,
				From:     from,
				To:       to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for connection state events.
type StatusChange struct {
	ConnID   string
	Username string
	From     State
	To       State
}
