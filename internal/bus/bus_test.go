package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	b.Emit(KindPresenceOnline, PresencePayload{Username: "alice"})

	select {
	case evt := <-ch:
		if evt.Kind != KindPresenceOnline {
			t.Errorf("got kind %q, want %s", evt.Kind, KindPresenceOnline)
		}
		if p, ok := evt.Payload.(PresencePayload); !ok || p.Username != "alice" {
			t.Errorf("payload = %#v, want alice presence", evt.Payload)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Emit(KindPresenceOffline, nil)
	b.Emit(KindMessageDelivered, MessagePayload{MessageID: "m1"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageDelivered {
			t.Errorf("got kind %q, want %s", evt.Kind, KindMessageDelivered)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure presence event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", 10)
	unsub()
	unsub() // second call is a no-op

	b.Emit(KindPresenceOnline, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 1)
	defer unsub()

	b.Emit(KindMessageCreated, "one")
	// This should be dropped (non-blocking).
	b.Emit(KindMessageRead, "two")

	evt := <-ch
	if evt.Payload != "one" {
		t.Errorf("got %v, want one", evt.Payload)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}
