package ws

import (
	"errors"
	"fmt"
	"testing"

	"github.com/matheus3301/dmchat/internal/auth"
	"github.com/matheus3301/dmchat/internal/protocol"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func testClient() *Client {
	user := &store.User{ID: "u1", Username: "alice"}
	return newClient("c1", user, nil, rate.NewLimiter(1, 1), zap.NewNop())
}

func TestSendQueues(t *testing.T) {
	c := testClient()
	if err := c.Send(protocol.UserOnline("bob")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case out := <-c.send:
		if out.Event != protocol.EventUserOnline {
			t.Errorf("queued event = %q", out.Event)
		}
	default:
		t.Fatal("nothing queued")
	}
}

func TestSendFullBufferDoesNotBlock(t *testing.T) {
	c := testClient()
	for i := 0; i < sendBuffer; i++ {
		if err := c.Send(protocol.UserOnline("bob")); err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}
	if err := c.Send(protocol.UserOnline("bob")); !errors.Is(err, ErrSlowConsumer) {
		t.Errorf("Send() on full buffer = %v, want ErrSlowConsumer", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	c := testClient()
	c.Close()
	c.Close()
	if err := c.Send(protocol.UserOnline("bob")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after close = %v, want ErrClosed", err)
	}
}

func TestAuthReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{auth.ErrMissingToken, "authentication required"},
		{auth.ErrExpiredToken, "token expired"},
		{auth.ErrInvalidToken, "invalid token"},
		{auth.ErrUserNotFound, "user not found"},
		{auth.ErrNotPermitted, "user not permitted"},
		{fmt.Errorf("find user: %w", errors.New("db down")), "authentication failed"},
	}
	for _, tt := range tests {
		if got := authReason(tt.err); got != tt.want {
			t.Errorf("authReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
