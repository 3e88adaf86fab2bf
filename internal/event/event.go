// Package event provides the publish/subscribe dispatcher the host
// application uses to observe editor, tab, and sync activity. Consumers
// subscribe by event name; every subscriber of a name receives every
// payload published under it.
package event

import (
	"log/slog"
	"sync"
)

// Handler receives a published payload.
type Handler func(payload any)

type subscription struct {
	id int
	fn Handler
}

// Dispatcher routes published events to subscribers. Dispatch is
// synchronous and in subscription order; a panicking handler is logged
// and does not take down the publisher.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   int
	closed   bool
	logger   *slog.Logger
}

// New creates a dispatcher with a discarded logger.
func New() *Dispatcher {
	return NewWithLogger(slog.New(slog.DiscardHandler))
}

// NewWithLogger creates a dispatcher that logs handler panics and
// post-close publishes.
func NewWithLogger(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event name and returns an
// unsubscribe function. Unsubscribing twice is harmless.
func (d *Dispatcher) Subscribe(name string, fn Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.handlers[name] = append(d.handlers[name], subscription{id: id, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		subs := d.handlers[name]
		for i, sub := range subs {
			if sub.id == id {
				d.handlers[name] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload to every subscriber of name.
func (d *Dispatcher) Publish(name string, payload any) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.logger.Debug("publish after close", "event", name)
		return
	}
	subs := make([]subscription, len(d.handlers[name]))
	copy(subs, d.handlers[name])
	d.mu.RUnlock()

	for _, sub := range subs {
		d.dispatch(name, sub, payload)
	}
}

func (d *Dispatcher) dispatch(name string, sub subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "event", name, "panic", r)
		}
	}()
	sub.fn(payload)
}

// Close drops all subscriptions and rejects further publishes.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.handlers = make(map[string][]subscription)
}
