// Package hub is the real-time core: it tracks who is connected, keeps
// presence consistent across devices, and routes messages and ephemeral
// signals between connections.
package hub

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/dmchat/internal/bus"
	"github.com/matheus3301/dmchat/internal/config"
	"github.com/matheus3301/dmchat/internal/protocol"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrValidation marks a malformed or unacceptable request.
	ErrValidation = errors.New("validation failed")
	// ErrRecipientUnknown marks a recipient that does not resolve to a permitted account.
	ErrRecipientUnknown = errors.New("recipient not found")
	// ErrNotPermitted marks a sender whose account may no longer message.
	ErrNotPermitted = errors.New("sender not permitted")
	// ErrStoreUnavailable marks a failed store call.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrShuttingDown is returned by Connect once Shutdown has started.
	ErrShuttingDown = errors.New("hub shutting down")
)

// Conn is the handle of one live client connection. Send must not block.
type Conn interface {
	ID() string
	Send(out protocol.Outbound) error
}

// PresenceStore persists presence flags.
type PresenceStore interface {
	UpdateUserPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
}

// MessageStore persists and looks up messages and the accounts they name.
type MessageStore interface {
	FindUserByUsername(ctx context.Context, username string) (*store.User, error)
	CreateMessage(ctx context.Context, m *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	MarkMessageRead(ctx context.Context, id string) (bool, error)
}

// AnnounceStore lists the audience of administrator announcements.
type AnnounceStore interface {
	ListRecipients(ctx context.Context) ([]store.User, error)
	CreateMessage(ctx context.Context, m *store.Message) error
}

// Store is everything the hub needs from persistence. *store.DB satisfies it.
type Store interface {
	PresenceStore
	MessageStore
	AnnounceStore
}

// Options tune delivery behaviour.
type Options struct {
	Fanout           string // config.FanoutLatest or config.FanoutAll
	MaxContentLength int
}

// Hub wires the registry, presence, router, relay and announcer together.
type Hub struct {
	registry  *Registry
	presence  *Presence
	router    *Router
	relay     *Relay
	announcer *Announcer
	logger    *zap.Logger
}

// New creates a hub over the given store.
func New(st Store, b *bus.Bus, logger *zap.Logger, opts Options) *Hub {
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = 1000
	}
	reg := NewRegistry(opts.Fanout == config.FanoutAll)
	return &Hub{
		registry:  reg,
		presence:  NewPresence(reg, st, b, logger),
		router:    NewRouter(reg, st, b, logger, opts.MaxContentLength),
		relay:     NewRelay(reg, logger),
		announcer: NewAnnouncer(reg, st, b, logger, opts.MaxContentLength),
		logger:    logger,
	}
}

// Registry exposes the connection registry for read-only queries.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect brings an authenticated connection online.
func (h *Hub) Connect(ctx context.Context, user *store.User, c Conn) error {
	return h.presence.Connect(ctx, user, c)
}

// Disconnect takes a connection offline. Safe to call more than once.
func (h *Hub) Disconnect(ctx context.Context, user *store.User, c Conn) {
	h.presence.Disconnect(ctx, user, c)
}

// Shutdown writes every connected user offline and closes their connections.
// Connects after Shutdown fail with ErrShuttingDown.
func (h *Hub) Shutdown(ctx context.Context) {
	conns := h.presence.Shutdown(ctx)
	for _, c := range conns {
		if cl, ok := c.(interface{ Close() }); ok {
			cl.Close()
		}
	}
	h.logger.Info("hub stopped", zap.Int("connections", len(conns)))
}

// Dispatch handles one decoded client event from c.
func (h *Hub) Dispatch(ctx context.Context, user *store.User, c Conn, evt protocol.Inbound) {
	switch e := evt.(type) {
	case protocol.SendMessage:
		_, _ = h.router.Send(ctx, user, c, e)
	case protocol.MarkAsRead:
		h.router.MarkRead(ctx, user, c, e)
	case protocol.Typing:
		h.relay.Typing(user, e)
	case protocol.CallSignal:
		h.relay.Call(user, e)
	default:
		h.logger.Warn("unhandled event", zap.String("event", evt.EventName()), zap.String("username", user.Username))
	}
}

// Broadcast sends an administrator announcement to every permitted user.
func (h *Hub) Broadcast(ctx context.Context, content string) (BroadcastResult, error) {
	return h.announcer.Broadcast(ctx, content)
}
