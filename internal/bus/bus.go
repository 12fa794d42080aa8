package bus

import (
	"strings"
	"sync"
)

// Bus is the in-process publish/subscribe feed for one session. The
// engine adapter publishes lifecycle and data events on it; sync
// handlers and the connection state machine consume them. Delivery to a
// subscriber is non-blocking: a full buffer drops the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*Subscription
	next int
}

// Subscription is an owned handle on a bus feed. Events arrive on C
// until Close is called.
type Subscription struct {
	C <-chan Event

	bus    *Bus
	id     int
	prefix string
	ch     chan Event
	once   sync.Once
}

// Close detaches the subscription from the bus. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Publish delivers evt to every subscription whose prefix matches
// evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
				// Slow subscriber; drop rather than block the feed.
			}
		}
	}
}

// Subscribe registers a subscription for events whose kind starts with
// prefix. An empty prefix matches everything. bufSize controls the
// channel buffer.
func (b *Bus) Subscribe(prefix string, bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{bus: b, prefix: prefix, ch: ch, C: ch}

	b.mu.Lock()
	sub.id = b.next
	b.next++
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return sub
}
