// Package feed is the change-notification registry owned by the
// data layer. Writers publish one Event per committed change;
// caches and streaming clients subscribe.
package feed

import (
	"slices"
	"sync"
	"time"
)

// Op is the kind of change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Table names carried in events.
const (
	TableAgents     = "agents"
	TableTraces     = "traces"
	TableDailyCosts = "daily_costs"
)

// Event describes one committed change.
type Event struct {
	Table string    `json:"table"`
	Op    Op        `json:"op"`
	Key   string    `json:"key,omitempty"`
	At    time.Time `json:"at"`
}

// Publisher is the write side of a Bus.
type Publisher interface {
	Publish(Event)
}

// Handler receives events. It runs on the publisher's goroutine
// and must not block.
type Handler func(Event)

// Bus fans events out to registered handlers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
	now    func() time.Time
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]Handler),
		now:  time.Now,
	}
}

// Subscribe registers h and returns a function that removes it.
// The returned cancel is safe to call more than once.
func (b *Bus) Subscribe(h Handler) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every handler registered at the time of
// the call, in registration order. A zero At is stamped with the
// current time.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = b.now()
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	handlers := make(map[int]Handler, len(b.subs))
	for id, h := range b.subs {
		ids = append(ids, id)
		handlers[id] = h
	}
	b.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		handlers[id](e)
	}
}

// Subscribers returns the number of registered handlers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
