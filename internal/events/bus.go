package events

import (
	"sync"
)

// Handler processes an event. Returning an error logs it but does not stop dispatch.
type Handler func(Event) error

// Bus is a synchronous in-process event bus.
// Subscribers are invoked in registration order on the publisher's goroutine,
// so handlers must be safe for concurrent use: dispatcher workers publish too.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	onError  func(Event, error)
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// OnError sets a hook for handler failures.
func (b *Bus) OnError(fn func(Event, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish dispatches an event to all registered handlers for its type.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Type]
	onError := b.onError
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(e); err != nil && onError != nil {
			// one bad handler shouldn't block others
			onError(e, err)
		}
	}
}
