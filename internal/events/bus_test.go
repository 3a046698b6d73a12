package events

import (
	"testing"
	"time"
)

func recvEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before event arrived")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	first := b.Subscribe()
	second := b.Subscribe()

	b.Publish(Event{Type: TypeSyncProgress, Data: "downloading"})

	for _, ch := range []chan Event{first, second} {
		e := recvEvent(t, ch)
		if e.Type != TypeSyncProgress {
			t.Errorf("type = %q, want %q", e.Type, TypeSyncProgress)
		}
		if e.Data != "downloading" {
			t.Errorf("data = %v, want downloading", e.Data)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch := b.Subscribe()
	b.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("got event on unsubscribed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("got event after close")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after bus close")
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := NewBus()
	b.Close()

	// Must not panic or block.
	b.Publish(Event{Type: TypeStoreChanged})

	if ch := b.Subscribe(); ch == nil {
		t.Fatal("subscribe after close returned nil channel")
	}
	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("subscriber count after close = %d, want 0", n)
	}
}

func TestSubscriberCount(t *testing.T) {
	b := NewBus()
	defer b.Close()

	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("initial count = %d, want 0", n)
	}

	ch := b.Subscribe()
	if n := b.SubscriberCount(); n != 1 {
		t.Errorf("count after subscribe = %d, want 1", n)
	}

	b.Unsubscribe(ch)
	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("count after unsubscribe = %d, want 0", n)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBus()
	defer b.Close()

	// Never drained; its buffer fills and later events are dropped for it.
	_ = b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(Event{Type: TypeStoreChanged, Data: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
