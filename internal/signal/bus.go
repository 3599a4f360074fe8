// Package signal is a small typed broadcast bus. Events carry no payload.
package signal

import (
	"sync"
)

// Event names a broadcast
type Event string

// AnalyticsDataUpdated is raised by any mutation that changes server-side aggregates
const AnalyticsDataUpdated Event = "analyticsDataUpdated"

// Handler receives an event
type Handler func(Event)

// Bus delivers events to subscribers synchronously, in subscription order
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Event][]subscription
	counts map[Event]int
}

type subscription struct {
	id int
	fn Handler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[Event][]subscription),
		counts: make(map[Event]int),
	}
}

// Subscribe registers fn for ev. The returned func removes the subscription
// and is safe to call more than once.
func (b *Bus) Subscribe(ev Event, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[ev] = append(b.subs[ev], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[ev]
			for i, s := range list {
				if s.id == id {
					b.subs[ev] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish raises ev. Handlers run on the caller's goroutine after the bus lock
// is released, so a handler may subscribe or publish.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	b.counts[ev]++
	handlers := make([]Handler, len(b.subs[ev]))
	for i, s := range b.subs[ev] {
		handlers[i] = s.fn
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Count returns how many times ev has been published
func (b *Bus) Count(ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[ev]
}

// Subscribers returns the number of live subscriptions to ev
func (b *Bus) Subscribers(ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[ev])
}
