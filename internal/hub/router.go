package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/matheus3301/dmchat/internal/bus"
	"github.com/matheus3301/dmchat/internal/protocol"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
)

// Router persists direct messages and pushes them to online recipients.
type Router struct {
	registry *Registry
	store    MessageStore
	bus      *bus.Bus
	logger   *zap.Logger
	maxLen   int
}

// NewRouter creates a message router.
func NewRouter(reg *Registry, st MessageStore, b *bus.Bus, logger *zap.Logger, maxLen int) *Router {
	return &Router{
		registry: reg,
		store:    st,
		bus:      b,
		logger:   logger,
		maxLen:   maxLen,
	}
}

// Send validates and persists a message, acknowledges it to origin and pushes
// it to the recipient when online. On failure origin gets a message_error and
// nothing is persisted or delivered.
func (r *Router) Send(ctx context.Context, sender *store.User, origin Conn, req protocol.SendMessage) (*store.Message, error) {
	msg, err := r.persist(ctx, sender, req)
	if err != nil {
		r.logger.Warn("message rejected", zap.Error(err),
			zap.String("sender", sender.Username), zap.String("recipient", req.Recipient))
		_ = origin.Send(protocol.MessageError(sendErrorMessage(err), err))
		return nil, err
	}

	if err := origin.Send(protocol.MessageSent(msg)); err != nil {
		r.logger.Debug("ack push failed", zap.Error(err), zap.String("conn_id", origin.ID()))
	}
	if r.bus != nil {
		r.bus.Emit(bus.KindMessageCreated, bus.MessagePayload{MessageID: msg.ID, Sender: msg.Sender, Recipient: msg.Recipient})
	}

	// Looked up after the store call: the recipient may have come or gone meanwhile.
	delivered := false
	for _, c := range r.registry.Targets(msg.Recipient) {
		if err := c.Send(protocol.ReceiveMessage(msg)); err != nil {
			r.logger.Debug("live push failed", zap.Error(err), zap.String("message_id", msg.ID), zap.String("conn_id", c.ID()))
			continue
		}
		delivered = true
	}
	if delivered && r.bus != nil {
		r.bus.Emit(bus.KindMessageDelivered, bus.MessagePayload{MessageID: msg.ID, Sender: msg.Sender, Recipient: msg.Recipient})
	}

	r.logger.Debug("message routed",
		zap.String("message_id", msg.ID),
		zap.String("sender", msg.Sender),
		zap.String("recipient", msg.Recipient),
		zap.Bool("live", delivered))
	return msg, nil
}

func (r *Router) persist(ctx context.Context, sender *store.User, req protocol.SendMessage) (*store.Message, error) {
	msgType := store.MessageType(req.MessageType)
	if msgType == "" {
		msgType = store.TypeText
	}
	if err := r.validate(req, msgType); err != nil {
		return nil, err
	}

	current, err := r.store.FindUserByUsername(ctx, sender.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: find sender: %v", ErrStoreUnavailable, err)
	}
	if current == nil || !current.Permitted {
		return nil, ErrNotPermitted
	}
	recipient, err := r.store.FindUserByUsername(ctx, req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: find recipient: %v", ErrStoreUnavailable, err)
	}
	if recipient == nil || !recipient.Permitted {
		return nil, fmt.Errorf("%w: %q", ErrRecipientUnknown, req.Recipient)
	}

	msg := &store.Message{
		Sender:    sender.Username,
		Recipient: recipient.Username,
		Content:   req.Content,
		Type:      msgType,
	}
	if err := r.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msg, nil
}

func (r *Router) validate(req protocol.SendMessage, msgType store.MessageType) error {
	if strings.TrimSpace(req.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if utf8.RuneCountInString(req.Content) > r.maxLen {
		return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, r.maxLen)
	}
	if !msgType.Valid() {
		return fmt.Errorf("%w: unknown messageType %q", ErrValidation, req.MessageType)
	}
	return nil
}

// MarkRead flags a message read on behalf of its recipient and tells the
// sender. Unknown messages, readers other than the recipient and messages that
// are already read are silently ignored.
func (r *Router) MarkRead(ctx context.Context, reader *store.User, origin Conn, req protocol.MarkAsRead) {
	if req.MessageID == "" {
		_ = origin.Send(protocol.MessageError("invalid read receipt", fmt.Errorf("%w: messageId is required", ErrValidation)))
		return
	}
	msg, err := r.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		r.logger.Error("failed to load message", zap.Error(err), zap.String("message_id", req.MessageID))
		_ = origin.Send(protocol.MessageError("failed to mark message as read", ErrStoreUnavailable))
		return
	}
	if msg == nil || msg.Recipient != reader.Username {
		return
	}

	changed, err := r.store.MarkMessageRead(ctx, msg.ID)
	if err != nil {
		r.logger.Error("failed to mark message read", zap.Error(err), zap.String("message_id", msg.ID))
		_ = origin.Send(protocol.MessageError("failed to mark message as read", ErrStoreUnavailable))
		return
	}
	if !changed {
		return
	}
	if r.bus != nil {
		r.bus.Emit(bus.KindMessageRead, bus.MessagePayload{MessageID: msg.ID, Sender: msg.Sender, Recipient: msg.Recipient})
	}

	for _, c := range r.registry.Targets(msg.Sender) {
		if err := c.Send(protocol.MessageRead(msg.ID, reader.Username)); err != nil {
			r.logger.Debug("read receipt push failed", zap.Error(err), zap.String("conn_id", c.ID()))
		}
	}
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid message"
	case errors.Is(err, ErrRecipientUnknown):
		return "recipient not found"
	case errors.Is(err, ErrNotPermitted):
		return "sender not permitted"
	default:
		return "failed to send message"
	}
}
