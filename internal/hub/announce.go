package hub

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/matheus3301/dmchat/internal/bus"
	"github.com/matheus3301/dmchat/internal/protocol"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
)

// BroadcastResult summarises one announcement.
type BroadcastResult struct {
	TotalUsers        int `json:"totalUsers"`
	MessagesSaved     int `json:"messagesSaved"`
	MessagesDelivered int `json:"messagesDelivered"`
}

// Announcer fans an administrator announcement out to every permitted user.
type Announcer struct {
	registry *Registry
	store    AnnounceStore
	bus      *bus.Bus
	logger   *zap.Logger
	maxLen   int
}

// NewAnnouncer creates an announcer.
func NewAnnouncer(reg *Registry, st AnnounceStore, b *bus.Bus, logger *zap.Logger, maxLen int) *Announcer {
	return &Announcer{registry: reg, store: st, bus: b, logger: logger, maxLen: maxLen}
}

// Broadcast stores one message from store.SystemSender per recipient and
// pushes admin_broadcast to those online. A failure for one user is logged
// and does not stop the others.
func (a *Announcer) Broadcast(ctx context.Context, content string) (BroadcastResult, error) {
	var res BroadcastResult
	if strings.TrimSpace(content) == "" {
		return res, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if utf8.RuneCountInString(content) > a.maxLen {
		return res, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, a.maxLen)
	}

	users, err := a.store.ListRecipients(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: list recipients: %v", ErrStoreUnavailable, err)
	}
	res.TotalUsers = len(users)

	for _, u := range users {
		msg := &store.Message{
			Sender:    store.SystemSender,
			Recipient: u.Username,
			Content:   content,
			Type:      store.TypeText,
		}
		if err := a.store.CreateMessage(ctx, msg); err != nil {
			a.logger.Error("failed to store announcement", zap.Error(err), zap.String("recipient", u.Username))
			continue
		}
		res.MessagesSaved++

		pushed := false
		for _, c := range a.registry.Targets(u.Username) {
			if err := c.Send(protocol.AdminBroadcast(msg)); err == nil {
				pushed = true
			}
		}
		if pushed {
			res.MessagesDelivered++
			if a.bus != nil {
				a.bus.Emit(bus.KindMessageDelivered, bus.MessagePayload{MessageID: msg.ID, Sender: msg.Sender, Recipient: msg.Recipient})
			}
		}
	}

	a.logger.Info("announcement sent",
		zap.Int("total_users", res.TotalUsers),
		zap.Int("saved", res.MessagesSaved),
		zap.Int("delivered", res.MessagesDelivered))
	if a.bus != nil {
		a.bus.Emit(bus.KindBroadcastSent, res)
	}
	return res, nil
}
