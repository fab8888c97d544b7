package outbox

import (
	"context"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// PublishAction publishes one event. Published events cannot be recalled, so
// Rollback does nothing.
type PublishAction struct {
	Publisher ports.EventPublisher
	Event     ports.Event
}

// Publish returns an action that publishes event with publisher.
func Publish(publisher ports.EventPublisher, event ports.Event) *PublishAction {
	return &PublishAction{Publisher: publisher, Event: event}
}

// Execute implements Action.
func (a *PublishAction) Execute(ctx context.Context) error {
	return a.Publisher.Publish(ctx, a.Event)
}

// Rollback implements Action.
func (a *PublishAction) Rollback(context.Context) error {
	return nil
}

// Description implements Action.
func (a *PublishAction) Description() string {
	return "publish " + a.Event.EventType()
}
