// Package events implements the event sinks the dispatcher publishes committed
// domain events to: an in-memory log, Redis streams, Kafka and webhooks.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// Envelope is the wire form shared by the stream sinks.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// NewEnvelope wraps an event. Change events are keyed by entity and identity,
// so every change of one value lands on the same Kafka partition.
func NewEnvelope(event ports.Event) (Envelope, error) {
	if event == nil || event.EventType() == "" {
		return Envelope{}, domain.NewValidationError("type", "event type is required")
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Type:       event.EventType(),
		OccurredAt: time.Now().UTC(),
		Payload:    event.Payload(),
	}

	if ce, ok := event.Payload().(domain.ChangeEvent); ok {
		env.OccurredAt = ce.OccurredAt
		if ce.EntityID != 0 {
			env.Key = ce.Entity + ":" + strconv.FormatInt(ce.EntityID, 10)
		}
	}

	return env, nil
}

// Marshal encodes the envelope.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.Type, err)
	}

	return data, nil
}

// unavailable wraps a broker failure.
func unavailable(sink string, err error) error {
	return fmt.Errorf("%w: %w", domain.NewUnavailableError(sink, "publish failed"), err)
}
