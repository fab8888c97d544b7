package events

import (
	"context"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/clients/acl"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// SinkWebhook is the name of the webhook sink.
const SinkWebhook = "webhook"

// WebhookPublisher posts events to an HTTP receiver through the acl adapter,
// which owns the payload contract and the error translation.
type WebhookPublisher struct {
	adapter *acl.WebhookAdapter
}

// NewWebhookPublisher wraps an adapter.
func NewWebhookPublisher(adapter *acl.WebhookAdapter) *WebhookPublisher {
	return &WebhookPublisher{adapter: adapter}
}

// Name implements app.EventSink.
func (p *WebhookPublisher) Name() string {
	return SinkWebhook
}

// Publish implements ports.EventPublisher.
func (p *WebhookPublisher) Publish(ctx context.Context, event ports.Event) error {
	return p.adapter.Deliver(ctx, event)
}

// Check implements ports.HealthChecker.
func (p *WebhookPublisher) Check(ctx context.Context) error {
	return p.adapter.Check(ctx)
}
