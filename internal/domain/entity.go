package domain

import (
	"maps"
	"strconv"
)

// IdentityKey is the map key FromMap reads a stored identity from.
const IdentityKey = "internal_id"

// Base carries the state every domain value object shares: an optional identity
// assigned by a repository and a side map of additional properties that have no
// typed field. Concrete types embed Base and tag their own fields with
// `mapstructure` and `validate`.
//
// The zero value has no identity and no additional properties.
type Base struct {
	id    *int64
	extra map[string]any
}

// Identity returns the stored identity and whether one has been assigned.
func (b *Base) Identity() (int64, bool) {
	if b.id == nil {
		return 0, false
	}

	return *b.id, true
}

// HasIdentity reports whether the value has been persisted.
func (b *Base) HasIdentity() bool {
	return b.id != nil
}

// IdentityString formats the identity for error messages and logs.
func (b *Base) IdentityString() string {
	if b.id == nil {
		return ""
	}

	return strconv.FormatInt(*b.id, 10)
}

// Extra returns a copy of the additional properties, nil when there are none.
func (b *Base) Extra() map[string]any {
	return maps.Clone(b.extra)
}

// ExtraValue looks up a single additional property.
func (b *Base) ExtraValue(key string) (any, bool) {
	v, ok := b.extra[key]
	return v, ok
}

// SetExtra stores an additional property.
func (b *Base) SetExtra(key string, value any) {
	if b.extra == nil {
		b.extra = make(map[string]any)
	}

	b.extra[key] = value
}

// DeleteExtra removes an additional property.
func (b *Base) DeleteExtra(key string) {
	delete(b.extra, key)

	if len(b.extra) == 0 {
		b.extra = nil
	}
}

func (b *Base) base() *Base {
	return b
}

// Entity is satisfied by pointers to types that embed Base.
type Entity interface {
	Identity() (int64, bool)
	Extra() map[string]any
	EntityName() string
	base() *Base
}

// AssignIdentity records the identity a repository obtained from the storage engine.
// Assigning the same identity again is a no-op; assigning a different one fails
// because an identity never changes once set.
func AssignIdentity(e Entity, id int64) error {
	b := e.base()

	if b.id != nil {
		if *b.id == id {
			return nil
		}

		return NewInvalidStateError(e.EntityName(), "assign identity",
			"identity "+strconv.FormatInt(*b.id, 10)+" is already set")
	}

	b.id = &id

	return nil
}

// Construct validates an already populated value and returns it.
// It is the typed counterpart of FromMap for callers that build values in code.
func Construct[E Entity](e E) (E, error) {
	if err := Validate(e); err != nil {
		var zero E
		return zero, err
	}

	return e, nil
}
