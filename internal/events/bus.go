package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. Delivery is asynchronous.
// Usage: bus.Publish(ScanStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the static type, so unwrap the interface
	switch e := ev.(type) {
	case DevicePreparedEvent:
		event.Publish(b.dispatcher, e)
	case ScanStartedEvent:
		event.Publish(b.dispatcher, e)
	case ScanCompletedEvent:
		event.Publish(b.dispatcher, e)
	case ScanAbortedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ScanCompletedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(DevicePreparedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ScanStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ScanCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ScanAbortedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
