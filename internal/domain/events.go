package domain

import "time"

// Event types emitted after a unit of work commits.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// ChangeEvent describes a committed change to a stored value object.
type ChangeEvent struct {
	Type       string         `json:"type"`
	Entity     string         `json:"entity"`
	EntityID   int64          `json:"entity_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewChangeEvent builds an event for a persisted value. Values without an identity
// produce an event with EntityID zero.
func NewChangeEvent(eventType string, e Entity, data map[string]any) ChangeEvent {
	id, _ := e.Identity()

	return ChangeEvent{
		Type:       eventType,
		Entity:     e.EntityName(),
		EntityID:   id,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// EventType implements the publisher's event contract.
func (e ChangeEvent) EventType() string {
	return e.Type
}

// Payload implements the publisher's event contract.
func (e ChangeEvent) Payload() any {
	return e
}
