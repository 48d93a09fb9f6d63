package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sipeed/clawcord/pkg/events"
)

const (
	queueSize = 100
	tapSize   = 64
)

// Subscriber is a named tap on a stream. Multiple subscribers can
// independently observe the same published values (fan-out).
type Subscriber struct {
	Name string
	ch   chan interface{} // receives copies of published values
}

// MessageBus carries gateway events from the gateway adapter to the
// dispatcher. The primary queue has exactly one consumer; taps are
// best-effort observers and drop when slow.
type MessageBus struct {
	queue     chan Event
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Int64

	eventSubs  []*Subscriber
	systemSubs []*Subscriber // for events.Event fan-out
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		queue: make(chan Event, queueSize),
	}
}

// --- Fan-out subscriptions ---

// SubscribeEvents creates a named subscriber that receives copies of all
// gateway events. The returned channel is buffered; slow consumers drop.
func (mb *MessageBus) SubscribeEvents(name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan interface{}, tapSize)}
	mb.eventSubs = append(mb.eventSubs, sub)
	return sub.ch
}

// SubscribeSystem creates a named subscriber for system events.
func (mb *MessageBus) SubscribeSystem(name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan interface{}, tapSize)}
	mb.systemSubs = append(mb.systemSubs, sub)
	return sub.ch
}

// PublishSystem publishes a system event to all system subscribers.
func (mb *MessageBus) PublishSystem(event events.Event) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	fanOut(mb.systemSubs, event)
}

func fanOut(subs []*Subscriber, v interface{}) {
	for _, sub := range subs {
		select {
		case sub.ch <- v:
		default: // drop if subscriber is slow
		}
	}
}

// --- Primary queue ---

// Publish enqueues a gateway event for the dispatcher. When the queue is
// full the oldest pending event is dropped to make room.
func (mb *MessageBus) Publish(ev Event) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	fanOut(mb.eventSubs, ev)

	select {
	case mb.queue <- ev:
		return
	default:
	}

	// Channel full: drop oldest and retry
	select {
	case <-mb.queue:
		mb.dropped.Add(1)
	default:
	}
	select {
	case mb.queue <- ev:
	default:
		mb.dropped.Add(1)
	}
}

// Consume blocks until an event is available, the bus is closed, or ctx is
// done. The second return value is false in the latter two cases.
func (mb *MessageBus) Consume(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-mb.queue:
		return ev, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (mb *MessageBus) Dropped() int64 {
	return mb.dropped.Load()
}

// Pending reports how many events wait in the queue.
func (mb *MessageBus) Pending() int {
	return len(mb.queue)
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		mb.closed = true
		for _, sub := range mb.eventSubs {
			close(sub.ch)
		}
		for _, sub := range mb.systemSubs {
			close(sub.ch)
		}
		close(mb.queue)
		mb.mu.Unlock()
	})
}
