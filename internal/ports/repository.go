// Package ports defines the contracts application code depends on.
// Use cases are written against these interfaces and string keys only; the
// concrete repositories, services and sessions are bound at startup through
// name-keyed registries.
//
// Port Design Principles:
//   - Context as first parameter on every blocking call
//   - Return domain types, never driver rows or transport DTOs
//   - Error returns use domain error types (ErrNotFound, ErrInvalidState, etc.)
//   - Keep interfaces small and focused
package ports

import (
	"context"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
)

// Record is the storage-side representation of a value object, keyed by column.
// It never crosses the repository boundary on the read or write paths used by
// application code.
type Record map[string]any

// Session is one unit of work against the storage engine. Every repository bound
// to the same session shares its transaction, so a write is visible to later reads
// in the same unit before it is committed. A Session is confined to one request.
type Session interface {
	// Commit makes every mutation of the current unit durable. The next
	// operation on the session starts a new unit.
	Commit(ctx context.Context) error

	// Rollback discards every mutation of the current unit. It is a no-op when
	// no unit is open.
	Rollback(ctx context.Context) error

	// Close rolls back any unfinished unit and releases the session.
	Close(ctx context.Context) error
}

// SessionOpener creates sessions. Transport adapters open one per request.
type SessionOpener interface {
	OpenSession(ctx context.Context) (Session, error)
}

// Repository moves one value object type in and out of storage.
//
// Mutations follow write-then-reread: the returned value is the stored state
// re-fetched after the write, so engine-populated fields are visible. Mutations
// commit the session unless WithoutCommit is passed. A persistence failure rolls
// the session back before the domain.PersistenceError is returned.
type Repository[T domain.Entity] interface {
	// FromDomain converts a value to its storage record.
	FromDomain(v T) (Record, error)

	// ToDomain converts a storage record to a validated value.
	ToDomain(rec Record) (T, error)

	// Get returns domain.NotFoundError when no record has the identity.
	Get(ctx context.Context, id int64) (T, error)

	// GetAll returns every stored value ordered by identity.
	GetAll(ctx context.Context) ([]T, error)

	// Insert stores a value that has no identity yet and returns it with the
	// engine-assigned identity.
	Insert(ctx context.Context, v T, opts ...WriteOption) (T, error)

	// Update requires the value's identity and returns domain.InvalidStateError
	// without touching storage when it is absent.
	Update(ctx context.Context, v T, opts ...WriteOption) (T, error)

	// Delete removes the stored value and returns it as it was before removal.
	Delete(ctx context.Context, v T, opts ...WriteOption) (T, error)

	// Query runs a filtered, sorted and paginated read.
	Query(ctx context.Context, q Query) ([]T, error)

	// Count returns the number of stored values, ignoring any query.
	Count(ctx context.Context) (int64, error)
}

// WriteOptions controls a single mutation.
type WriteOptions struct {
	Commit bool
}

// WriteOption customizes a mutation.
type WriteOption func(*WriteOptions)

// WithoutCommit leaves the mutation in the open unit of work. The caller commits
// or rolls back the session itself, which is how several mutations become one
// atomic unit.
func WithoutCommit() WriteOption {
	return func(o *WriteOptions) {
		o.Commit = false
	}
}

// WithCommit sets the commit flag explicitly.
func WithCommit(commit bool) WriteOption {
	return func(o *WriteOptions) {
		o.Commit = commit
	}
}

// ApplyWriteOptions resolves options over the defaults (commit enabled).
func ApplyWriteOptions(opts ...WriteOption) WriteOptions {
	o := WriteOptions{Commit: true}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// RepositoryFactory builds a repository bound to a session. Repository
// registries hold factories rather than instances because sessions are per request.
type RepositoryFactory func(Session) (any, error)
