package event

import "context"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Handler processes a published event on the dispatch goroutine.
type Handler func(ctx context.Context, e Event) error

// Publisher enqueues events for the dispatch goroutine. Publishing never
// runs the handler inline; events published while a handler is executing are
// queued behind it.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
