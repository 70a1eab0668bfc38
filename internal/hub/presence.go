package hub

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/dmchat/internal/bus"
	"github.com/matheus3301/dmchat/internal/protocol"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
)

const presenceStripes = 64

// Presence keeps the registry, the store's online flags and peers'
// views in step as connections come and go.
type Presence struct {
	registry *Registry
	store    PresenceStore
	bus      *bus.Bus
	logger   *zap.Logger
	now      func() time.Time
	closed   atomic.Bool

	// Connect and disconnect for one username run under the same stripe so the
	// registry transition, the store write and the broadcast are not interleaved
	// with another device of that user.
	stripes [presenceStripes]sync.Mutex
}

// NewPresence creates a presence broadcaster.
func NewPresence(reg *Registry, st PresenceStore, b *bus.Bus, logger *zap.Logger) *Presence {
	return &Presence{
		registry: reg,
		store:    st,
		bus:      b,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Presence) stripe(username string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return &p.stripes[h.Sum32()%presenceStripes]
}

// Connect marks the user online and registers c. Peers are told only when this
// is the user's first device. c is not reachable until the store write succeeds.
func (p *Presence) Connect(ctx context.Context, user *store.User, c Conn) error {
	mu := p.stripe(user.Username)
	mu.Lock()
	defer mu.Unlock()

	if p.closed.Load() {
		return ErrShuttingDown
	}
	now := p.now()
	if err := p.store.UpdateUserPresence(ctx, user.ID, true, now); err != nil {
		return fmt.Errorf("%w: update presence: %v", ErrStoreUnavailable, err)
	}
	first := p.registry.Register(user, c)

	p.logger.Info("user connected",
		zap.String("username", user.Username),
		zap.String("conn_id", c.ID()),
		zap.Bool("first_device", first))

	if !first {
		return nil
	}
	p.broadcast(user.Username, protocol.UserOnline(user.Username))
	if p.bus != nil {
		p.bus.Emit(bus.KindPresenceOnline, bus.PresencePayload{Username: user.Username, LastSeen: now})
	}
	return nil
}

// Disconnect unregisters c. Disconnecting a connection that is no longer
// registered does nothing. The user goes offline when the last device leaves.
func (p *Presence) Disconnect(ctx context.Context, user *store.User, c Conn) {
	mu := p.stripe(user.Username)
	mu.Lock()
	defer mu.Unlock()

	removed, last := p.registry.Unregister(user.Username, c)
	if !removed {
		p.logger.Debug("stale disconnect ignored", zap.String("username", user.Username), zap.String("conn_id", c.ID()))
		return
	}

	now := p.now()
	if err := p.store.UpdateUserPresence(ctx, user.ID, !last, now); err != nil {
		p.logger.Error("failed to update presence", zap.Error(err), zap.String("username", user.Username))
	}

	p.logger.Info("user disconnected",
		zap.String("username", user.Username),
		zap.String("conn_id", c.ID()),
		zap.Bool("last_device", last))

	if !last {
		return
	}
	p.broadcast(user.Username, protocol.UserOffline(user.Username, now))
	if p.bus != nil {
		p.bus.Emit(bus.KindPresenceOffline, bus.PresencePayload{Username: user.Username, LastSeen: now})
	}
}

// Shutdown refuses further connects and disconnects every registered
// connection, writing each user offline. It returns the connections it removed.
func (p *Presence) Shutdown(ctx context.Context) []Conn {
	p.closed.Store(true)
	// Wait out connects already holding a stripe.
	for i := range p.stripes {
		p.stripes[i].Lock()
		p.stripes[i].Unlock()
	}

	entries := p.registry.snapshot()
	conns := make([]Conn, 0, len(entries))
	for _, e := range entries {
		p.Disconnect(ctx, e.user, e.conn)
		conns = append(conns, e.conn)
	}
	return conns
}

func (p *Presence) broadcast(username string, out protocol.Outbound) {
	for _, peer := range p.registry.Others(username) {
		if err := peer.Send(out); err != nil {
			p.logger.Debug("presence push failed", zap.Error(err), zap.String("conn_id", peer.ID()))
		}
	}
}
