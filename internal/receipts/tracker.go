// Package receipts persists delivery receipts announced on the bus.
package receipts

import (
	"context"
	"time"

	"github.com/matheus3301/dmchat/internal/bus"
	"go.uber.org/zap"
)

const (
	flushInterval = 100 * time.Millisecond
	maxBatch      = 64
)

// DeliveryStore marks messages as delivered.
type DeliveryStore interface {
	MarkMessagesDelivered(ctx context.Context, ids []string) (int64, error)
}

// Tracker batches message.delivered events into store updates.
// It subscribes to "message." events on the bus.
type Tracker struct {
	store  DeliveryStore
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a new receipt tracker.
func NewTracker(st DeliveryStore, b *bus.Bus, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  st,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to message events on the bus.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	ch, unsub := t.bus.Subscribe("message.", 256)

	go func() {
		defer close(t.done)
		defer unsub()

		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()

		var pending []string
		for {
			select {
			case evt := <-ch:
				if id, ok := deliveredID(evt); ok {
					pending = append(pending, id)
				}
				if len(pending) >= maxBatch {
					pending = t.flush(pending)
				}
			case <-ticker.C:
				pending = t.flush(pending)
			case <-ctx.Done():
				t.drain(ch, pending)
				return
			}
		}
	}()
}

// Stop stops the tracker and writes any receipts still pending.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
}

func (t *Tracker) drain(ch <-chan bus.Event, pending []string) {
	for {
		select {
		case evt := <-ch:
			if id, ok := deliveredID(evt); ok {
				pending = append(pending, id)
			}
		default:
			t.flush(pending)
			return
		}
	}
}

func (t *Tracker) flush(ids []string) []string {
	if len(ids) == 0 {
		return ids
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := t.store.MarkMessagesDelivered(ctx, ids)
	if err != nil {
		t.logger.Error("failed to record deliveries", zap.Error(err), zap.Int("count", len(ids)))
	} else {
		t.logger.Debug("deliveries recorded", zap.Int64("updated", n), zap.Int("received", len(ids)))
	}
	return ids[:0]
}

func deliveredID(evt bus.Event) (string, bool) {
	if evt.Kind != bus.KindMessageDelivered {
		return "", false
	}
	p, ok := evt.Payload.(bus.MessagePayload)
	if !ok || p.MessageID == "" {
		return "", false
	}
	return p.MessageID, true
}
