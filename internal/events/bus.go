package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      uint64
	filter  map[EventType]bool // empty: every type
	handler Handler
}

func (s *subscription) wants(t EventType) bool {
	return len(s.filter) == 0 || s.filter[t]
}

// Bus fans events out to subscribers in subscription order. Publishing
// never takes the write lock; subscribers are swapped copy-on-write.
type Bus struct {
	mu     sync.Mutex // serializes Subscribe and unsubscribe
	nextID uint64
	subs   atomic.Pointer[[]*subscription]
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	b := &Bus{}
	b.subs.Store(&[]*subscription{})
	return b
}

// Subscribe adds handler for the listed types, or for all types when none
// are given. Calling the returned func more than once is harmless.
func (b *Bus) Subscribe(handler Handler, types ...EventType) (unsubscribe func()) {
	sub := &subscription{handler: handler, filter: make(map[EventType]bool, len(types))}
	for _, t := range types {
		sub.filter[t] = true
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	cur := *b.subs.Load()
	next := make([]*subscription, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, sub)
	b.subs.Store(&next)
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { b.drop(sub.id) }) }
}

func (b *Bus) drop(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.subs.Load()
	next := make([]*subscription, 0, len(cur))
	for _, s := range cur {
		if s.id != id {
			next = append(next, s)
		}
	}
	b.subs.Store(&next)
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int { return len(*b.subs.Load()) }

// Publish stamps e with an ID and UTC timestamp when missing and calls
// every interested handler on the caller's goroutine. A panicking handler
// is logged and skipped.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	for _, s := range *b.subs.Load() {
		if s.wants(e.Type) {
			deliver(s.handler, e)
		}
	}
}

func deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "events").
				Str("type", string(e.Type)).
				Str("event_id", e.ID).
				Interface("panic", r).
				Msg("subscriber panic")
		}
	}()
	h(e)
}
