// Package outbox collects side effects a use case produces inside a unit of
// work and runs them only after the unit commits.
//
// A use case stages actions:
//
//	ob := outbox.FromContext(ctx)
//	ob.Stage(outbox.Publish(publisher, domain.NewChangeEvent(domain.EventUserCreated, u, nil)))
//
// The dispatcher flushes the outbox after Session.Commit succeeds and discards
// it when the unit is rolled back, so nothing escapes from a failed unit.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when staging into or flushing an outbox that was
// already flushed or discarded.
var ErrClosed = errors.New("outbox already flushed or discarded")

// Action is a staged side effect.
type Action interface {
	// Execute performs the action.
	Execute(ctx context.Context) error

	// Rollback undoes the action if possible.
	Rollback(ctx context.Context) error

	// Description returns a human-readable description for logging.
	Description() string
}

type ctxKey struct{}

// Outbox holds the actions staged during one unit of work.
type Outbox struct {
	mu      sync.Mutex
	actions []Action
	closed  bool
}

// New returns an empty outbox.
func New() *Outbox {
	return &Outbox{}
}

// FromContext returns the outbox in ctx, or nil.
func FromContext(ctx context.Context) *Outbox {
	if ctx == nil {
		return nil
	}

	if ob, ok := ctx.Value(ctxKey{}).(*Outbox); ok {
		return ob
	}

	return nil
}

// WithContext stores the outbox in ctx.
func WithContext(ctx context.Context, ob *Outbox) context.Context {
	return context.WithValue(ctx, ctxKey{}, ob)
}

// Stage appends an action.
func (o *Outbox) Stage(action Action) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}

	o.actions = append(o.actions, action)

	return nil
}

// Flush executes the staged actions in order. When one fails, the actions
// already executed are rolled back in reverse order and the failure is returned.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}

	o.closed = true

	executed := make([]Action, 0, len(o.actions))

	for _, action := range o.actions {
		if err := action.Execute(ctx); err != nil {
			var rbErrs []error

			for i := len(executed) - 1; i >= 0; i-- {
				if rbErr := executed[i].Rollback(ctx); rbErr != nil {
					rbErrs = append(rbErrs, fmt.Errorf("rolling back %q: %w", executed[i].Description(), rbErr))
				}
			}

			return errors.Join(append([]error{fmt.Errorf("action %q failed: %w", action.Description(), err)}, rbErrs...)...)
		}

		executed = append(executed, action)
	}

	return nil
}

// Discard drops every staged action without running it and returns how many
// were dropped.
func (o *Outbox) Discard() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.actions)
	o.actions = nil
	o.closed = true

	return n
}

// Len returns the number of staged actions.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.actions)
}

// Actions returns a copy of the staged actions.
func (o *Outbox) Actions() []Action {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Action, len(o.actions))
	copy(out, o.actions)

	return out
}
