package lifecycle

import (
	"context"
	"sync"

	"github.com/eidolon-labs/notesync/internal/logging"
)

// Handler receives lifecycle payloads in publish order.
type Handler func(Payload)

// Bus delivers lifecycle events to registered handlers, preserving
// publish order even when a handler itself calls Publish re-entrantly:
// a re-entrant publish is queued rather than dispatched inline, so a
// handler never observes an event that logically happened after the one
// it's currently processing.
type Bus struct {
	log         logging.Logger
	mu          sync.Mutex
	handlers    []Handler
	queue       []Payload
	dispatching bool
}

func NewBus(log logging.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers a handler, called for every event published after
// this call (no replay of past events).
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish enqueues an event. If a dispatch is already in progress
// (this call happened from inside a handler), the event is appended to
// the queue and drained after the current dispatch finishes, preserving
// order. Otherwise dispatch starts immediately.
func (b *Bus) Publish(event Event, data map[string]interface{}) {
	b.mu.Lock()
	b.queue = append(b.queue, Payload{Event: event, Data: data})
	if b.dispatching {
		b.mu.Unlock()
		return
	}
	b.dispatching = true
	b.mu.Unlock()

	b.drain()
}

func (b *Bus) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.dispatching = false
			b.mu.Unlock()
			return
		}
		next := b.queue[0]
		b.queue = b.queue[1:]
		handlers := append([]Handler(nil), b.handlers...)
		b.mu.Unlock()

		for _, h := range handlers {
			b.safeDispatch(h, next)
		}
	}
}

func (b *Bus) safeDispatch(h Handler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			// No caller context survives a Publish call across the queue
			// boundary; context.Background() is the right default for a
			// panic-recovery log line.
			b.log.Error(context.Background(), "lifecycle handler panicked", "event", p.Event, "recover", r)
		}
	}()
	h(p)
}
