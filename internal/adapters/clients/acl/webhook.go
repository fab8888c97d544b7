package acl

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/clients"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

const operationDeliver = "deliver event"

// WebhookPayload is the receiver-facing shape of an event. DeliveryID is new
// for every delivery so receivers can discard duplicates after a retry.
type WebhookPayload struct {
	DeliveryID string    `json:"delivery_id"`
	Type       string    `json:"type"`
	Entity     string    `json:"entity,omitempty"`
	EntityID   int64     `json:"entity_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// TranslateEvent converts a domain event to the webhook contract.
func TranslateEvent(event ports.Event) (*WebhookPayload, error) {
	if event == nil || event.EventType() == "" {
		return nil, domain.NewValidationError("type", "event type is required")
	}

	payload := &WebhookPayload{
		DeliveryID: uuid.NewString(),
		Type:       event.EventType(),
	}

	switch p := event.Payload().(type) {
	case domain.ChangeEvent:
		payload.Entity = p.Entity
		payload.EntityID = p.EntityID
		payload.OccurredAt = p.OccurredAt

		if len(p.Data) > 0 {
			payload.Data = p.Data
		}
	default:
		payload.OccurredAt = time.Now().UTC()
		payload.Data = p
	}

	return payload, nil
}

// WebhookAdapter posts events to one receiver.
type WebhookAdapter struct {
	client   *clients.Client
	receiver string
	path     string
}

// NewWebhookAdapter creates an adapter that posts to path on the client's base URL.
// The receiver name is used in errors.
func NewWebhookAdapter(client *clients.Client, receiver, path string) *WebhookAdapter {
	if path == "" {
		path = "/"
	}

	return &WebhookAdapter{client: client, receiver: receiver, path: path}
}

// Receiver returns the receiver name.
func (a *WebhookAdapter) Receiver() string {
	return a.receiver
}

// Deliver translates and posts one event. Errors are domain errors.
func (a *WebhookAdapter) Deliver(ctx context.Context, event ports.Event) error {
	payload, err := TranslateEvent(event)
	if err != nil {
		return err
	}

	resp, err := a.client.PostJSON(ctx, a.path, payload)
	if err != nil {
		return MapHTTPError(nil, err, a.receiver, operationDeliver)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	return MapHTTPError(resp, nil, a.receiver, operationDeliver)
}

// Check reports the receiver as unavailable while the circuit is open.
func (a *WebhookAdapter) Check(_ context.Context) error {
	if a.client.CircuitState() == clients.StateOpen {
		return domain.NewUnavailableError(a.receiver, "circuit breaker open")
	}

	return nil
}
