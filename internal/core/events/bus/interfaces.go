package bus

import "time"

// EventBus is the in-process pub/sub channel a world uses to announce
// lifecycle changes (entities and components created or destroyed, snapshots
// instantiated).
//
// Key characteristics:
// - Type-based fan-out: handlers subscribe by Event.Type().
// - Synchronous delivery: Publish calls handlers in the caller goroutine, in
// subscription order.
// - Error aggregation: handler errors are joined and returned from Publish.
//
// A world publishes only after its write gate is released, so handlers may
// call back into the world. All methods are safe for concurrent use.
type EventBus interface {
	// Publish delivers the event to every active subscriber of event.Type().
	Publish(event Event) error

	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels sub. A nil subscription is ignored.
	Unsubscribe(sub Subscription) error
}

// Event is an immutable message transported by the bus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

// EventHandler is invoked per delivered event.
type EventHandler func(event Event) error

// Subscription is a registered handler bound to an event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel removes the handler from the bus. Repeated calls are safe.
	Cancel() error
}
