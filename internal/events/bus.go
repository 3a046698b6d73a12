// Package events implements the in-process event bus that feeds UI bridges
// with pairing, sync, and store-change notifications.
package events

import (
	"sync/atomic"
)

// Event types published by the sync core.
const (
	TypePairingState = "pairing.state"
	TypeSyncProgress = "sync.progress"
	TypeStoreChanged = "store.changed"
)

// Event is a single notification delivered to every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Bus fans events out to subscribers.
//
// Concurrency model: a single internal loop (goroutine) owns the subscriber
// set. Public methods communicate with this loop through channels, so no
// mutexes are required.
type Bus struct {
	subscribeCh   chan chan Event
	unsubscribeCh chan chan Event
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBus creates a bus and starts its delivery loop.
func NewBus() *Bus {
	b := &Bus{
		subscribeCh:   make(chan chan Event),
		unsubscribeCh: make(chan chan Event),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Bus) run() {
	defer close(b.stopped)

	subscribers := make(map[chan Event]struct{})

	for {
		select {
		case <-b.stopCh:
			for ch := range subscribers {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			subscribers[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := subscribers[ch]; ok {
				delete(subscribers, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			for ch := range subscribers {
				select {
				case ch <- event:
				default:
					// Subscriber buffer full; skip to avoid blocking the loop.
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(subscribers)
		}
	}
}

// Close stops the delivery loop and closes all subscriber channels.
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a subscriber and returns its channel.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all subscribers. Publishing after Close is a
// no-op, so producers never need to coordinate shutdown with the bus.
func (b *Bus) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}
