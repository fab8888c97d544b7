package ports

import (
	"context"
)

// Service is a stateless domain capability resolved from the service registry,
// for example normalizing input before it is stored.
type Service[I, O any] interface {
	Run(ctx context.Context, in I) (O, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc[I, O any] func(ctx context.Context, in I) (O, error)

// Run implements Service.
func (f ServiceFunc[I, O]) Run(ctx context.Context, in I) (O, error) {
	return f(ctx, in)
}

// EventPublisher delivers events after the unit of work that produced them commits.
// Implementations may use a message broker, a stream, a webhook or memory.
type EventPublisher interface {
	// Publish sends an event to the configured destination.
	// Returns domain.ErrUnavailable if the destination is unreachable.
	Publish(ctx context.Context, event Event) error
}

// Event represents a domain event that can be published.
type Event interface {
	// EventType returns the type identifier for routing.
	EventType() string

	// Payload returns the event data for serialization.
	Payload() any
}
