package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	b.Publish(Event{Kind: PresenceChanged, Timestamp: time.Now(), Payload: "u1"})

	select {
	case evt := <-ch:
		if evt.Kind != PresenceChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, PresenceChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("social.", 10)
	defer unsub()

	b.Emit(MessageCreated, nil)
	b.Emit(FollowToggled, nil)

	select {
	case evt := <-ch:
		if evt.Kind != FollowToggled {
			t.Errorf("got kind %q, want %s", evt.Kind, FollowToggled)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The message event must not have been delivered.
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

	b.Emit(PresenceChanged, nil)

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

	b.Emit("message.one", nil)
	// Buffer is full; this one is dropped rather than blocking.
	b.Emit("message.two", nil)

	evt := <-ch
	if evt.Kind != "message.one" {
		t.Errorf("got %q, want message.one", evt.Kind)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Kind: MessageCreated})
	evt := <-ch
	if evt.Timestamp.IsZero() {
		t.Error("timestamp was not stamped")
	}
	if evt.Namespace() != "message." {
		t.Errorf("namespace = %q, want message.", evt.Namespace())
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Emit(MessageCreated, nil)
}
