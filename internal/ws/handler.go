package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/matheus3301/dmchat/internal/auth"
	"github.com/matheus3301/dmchat/internal/bus"
	"github.com/matheus3301/dmchat/internal/hub"
	"github.com/matheus3301/dmchat/internal/protocol"
	"github.com/matheus3301/dmchat/internal/status"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	localUser      = "dmchat.user"
	disconnectWait = 5 * time.Second
	maxFrameBytes  = 64 << 10
)

// Limits bound what a single connection may send.
type Limits struct {
	MessagesPerSecond float64
	Burst             int
}

// Handler serves the /ws endpoint.
type Handler struct {
	hub    *hub.Hub
	authn  *auth.Authenticator
	bus    *bus.Bus
	logger *zap.Logger
	limits Limits
}

// NewHandler creates a WebSocket handler.
func NewHandler(h *hub.Hub, authn *auth.Authenticator, b *bus.Bus, logger *zap.Logger, limits Limits) *Handler {
	return &Handler{hub: h, authn: authn, bus: b, logger: logger, limits: limits}
}

// Upgrade authenticates the upgrade request. A missing or bad credential is
// answered with 401 before any connection state exists.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		token = c.Query("token")
	}
	user, err := h.authn.Authenticate(c.UserContext(), token)
	if err != nil {
		h.logger.Info("websocket authentication failed", zap.Error(err), zap.String("remote", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": authReason(err)})
	}

	c.Locals(localUser, user)
	return c.Next()
}

// Serve returns the fiber handler running each upgraded connection.
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(h.serve, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	})
}

func (h *Handler) serve(conn *websocket.Conn) {
	user, ok := conn.Locals(localUser).(*store.User)
	if !ok {
		_ = conn.Close()
		return
	}

	id := uuid.NewString()
	machine := status.NewMachine(id, h.bus)
	if err := machine.Authenticate(user.Username); err != nil {
		h.logger.Error("connection state", zap.Error(err))
		return
	}
	limiter := rate.NewLimiter(rate.Limit(h.limits.MessagesPerSecond), h.limits.Burst)
	client := newClient(id, user, conn, limiter, h.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.hub.Connect(ctx, user, client); err != nil {
		client.logger.Error("connect failed", zap.Error(err))
		_ = conn.WriteJSON(protocol.MessageError("connection failed", err))
		_ = machine.Transition(status.Offline)
		return
	}
	_ = machine.Transition(status.Online)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.writePump()
	}()

	h.readPump(ctx, client)

	// The connection context is gone by now; presence must still be written.
	dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectWait)
	h.hub.Disconnect(dctx, user, client)
	dcancel()

	client.Close()
	<-writerDone
	_ = machine.Transition(status.Offline)
}

func (h *Handler) readPump(ctx context.Context, c *Client) {
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("client closed connection")
			} else {
				c.logger.Debug("read error", zap.Error(err))
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}

		if !c.limiter.Allow() {
			_ = c.Send(protocol.MessageError("rate limit exceeded", nil))
			continue
		}

		evt, err := protocol.Decode(raw)
		if err != nil {
			_ = c.Send(protocol.MessageError("invalid event", err))
			continue
		}
		h.hub.Dispatch(ctx, c.user, c, evt)
	}
}

func authReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "authentication required"
	case errors.Is(err, auth.ErrExpiredToken):
		return "token expired"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid token"
	case errors.Is(err, auth.ErrUserNotFound):
		return "user not found"
	case errors.Is(err, auth.ErrNotPermitted):
		return "user not permitted"
	default:
		return "authentication failed"
	}
}
