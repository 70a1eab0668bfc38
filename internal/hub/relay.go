package hub

import (
	"github.com/matheus3301/dmchat/internal/protocol"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
)

// Relay forwards ephemeral signals between connections. Nothing is stored and
// signals for offline recipients are dropped.
type Relay struct {
	registry *Registry
	logger   *zap.Logger
}

// NewRelay creates a signal relay.
func NewRelay(reg *Registry, logger *zap.Logger) *Relay {
	return &Relay{registry: reg, logger: logger}
}

// Typing forwards typing and stop_typing as user_typing.
func (r *Relay) Typing(sender *store.User, req protocol.Typing) {
	r.forward(req.Recipient, protocol.UserTyping(sender.Username, req.IsTyping))
}

// Call forwards a call control signal, stamping the authenticated caller.
func (r *Relay) Call(sender *store.User, req protocol.CallSignal) {
	req.Caller = sender.Username
	r.forward(req.Recipient, protocol.CallEvent(req))
}

func (r *Relay) forward(recipient string, out protocol.Outbound) {
	targets := r.registry.Targets(recipient)
	if len(targets) == 0 {
		r.logger.Debug("signal dropped, recipient offline", zap.String("event", out.Event), zap.String("recipient", recipient))
		return
	}
	for _, c := range targets {
		if err := c.Send(out); err != nil {
			r.logger.Debug("signal push failed", zap.Error(err), zap.String("conn_id", c.ID()))
		}
	}
}
