// Package ws adapts WebSocket connections to the hub.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/matheus3301/dmchat/internal/protocol"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	// ErrClosed is returned by Send after the connection has gone away.
	ErrClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned by Send when the outbound buffer is full.
	ErrSlowConsumer = errors.New("send buffer full")
)

// Client is one authenticated WebSocket connection. It implements hub.Conn.
type Client struct {
	id      string
	user    *store.User
	conn    *websocket.Conn
	limiter *rate.Limiter
	logger  *zap.Logger

	send      chan protocol.Outbound
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, user *store.User, conn *websocket.Conn, limiter *rate.Limiter, logger *zap.Logger) *Client {
	return &Client{
		id:      id,
		user:    user,
		conn:    conn,
		limiter: limiter,
		logger:  logger.With(zap.String("conn_id", id), zap.String("username", user.Username)),
		send:    make(chan protocol.Outbound, sendBuffer),
		done:    make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send queues out for the writer. It never blocks.
func (c *Client) Send(out protocol.Outbound) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- out:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.logger.Warn("dropping outbound event, buffer full", zap.String("event", out.Event))
		return ErrSlowConsumer
	}
}

// Close stops the writer, which sends a close frame and closes the socket.
// Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump serialises all writes to the socket. It returns once done is
// closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case out := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(out); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		}
	}
}

// flush writes whatever is still queued without waiting for more.
func (c *Client) flush() {
	for {
		select {
		case out := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(out); err != nil {
				return
			}
		default:
			return
		}
	}
}
