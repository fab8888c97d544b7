// Package domain contains value objects, validation and the error taxonomy.
// Domain errors represent business-level failures, NOT transport errors.
// They are infrastructure-agnostic and mapped to HTTP status codes or CLI exit codes by adapters.
package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a state conflict such as a duplicate key.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates a value violates its schema or business rules.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState indicates an operation was attempted on a value in the wrong state,
	// for example updating a value that has never been stored.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnboundName indicates a registry lookup for a name nothing was registered under.
	ErrUnboundName = errors.New("unbound name")

	// ErrPersistence indicates the storage engine rejected a write or failed to commit.
	ErrPersistence = errors.New("persistence failure")

	// ErrMapping indicates a stored record could not be mapped to or from a domain value.
	ErrMapping = errors.New("mapping failed")

	// ErrUnavailable indicates a required dependency is unavailable.
	ErrUnavailable = errors.New("unavailable")
)

// NotFoundError provides context for not found errors.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with id %q not found", e.Entity, e.ID)
	}

	return e.Entity + " not found"
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not found error with context.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewNotFoundByID creates a not found error for a numeric identity.
func NewNotFoundByID(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: strconv.FormatInt(id, 10)}
}

// ConflictError provides context for conflict errors.
type ConflictError struct {
	Entity  string
	Reason  string
	Details string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s conflict: %s (%s)", e.Entity, e.Reason, e.Details)
	}

	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError creates a conflict error with context.
func NewConflictError(entity, reason string) error {
	return &ConflictError{Entity: entity, Reason: reason}
}

// ValidationError provides context for validation errors.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}

	return "validation failed: " + e.Message
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a validation error with context.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorWithValue creates a validation error including the invalid value.
func NewValidationErrorWithValue(field, message string, value any) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// InvalidStateError reports an operation that the value's current state does not allow.
type InvalidStateError struct {
	Entity    string
	Operation string
	Reason    string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s", e.Operation, e.Entity, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// NewInvalidStateError creates an invalid state error with context.
func NewInvalidStateError(entity, operation, reason string) error {
	return &InvalidStateError{Entity: entity, Operation: operation, Reason: reason}
}

// UnboundNameError is returned by registries when a name has no binding.
type UnboundNameError struct {
	Family string
	Name   string
}

// Error implements the error interface.
func (e *UnboundNameError) Error() string {
	return fmt.Sprintf("no %s registered under %q", e.Family, e.Name)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *UnboundNameError) Unwrap() error {
	return ErrUnboundName
}

// NewUnboundNameError creates an unbound name error for a registry family.
func NewUnboundNameError(family, name string) error {
	return &UnboundNameError{Family: family, Name: name}
}

// PersistenceError wraps a storage engine failure. It matches both ErrPersistence
// and the underlying driver error.
type PersistenceError struct {
	Entity    string
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Entity, e.Err)
}

// Unwrap exposes the sentinel and the cause.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// NewPersistenceError creates a persistence error wrapping cause.
func NewPersistenceError(entity, operation string, cause error) error {
	return &PersistenceError{Entity: entity, Operation: operation, Err: cause}
}

// MappingError reports a record field that has no counterpart on the other side of a mapping.
type MappingError struct {
	Entity string
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %s field %q: %s", e.Entity, e.Field, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *MappingError) Unwrap() error {
	return ErrMapping
}

// NewMappingError creates a mapping error with context.
func NewMappingError(entity, field, reason string) error {
	return &MappingError{Entity: entity, Field: field, Reason: reason}
}

// UnavailableError provides context for unavailable errors.
type UnavailableError struct {
	Service string
	Reason  string
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("service %q unavailable: %s", e.Service, e.Reason)
	}

	return fmt.Sprintf("service %q unavailable", e.Service)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *UnavailableError) Unwrap() error {
	return ErrUnavailable
}

// NewUnavailableError creates an unavailable error with context.
func NewUnavailableError(service, reason string) error {
	return &UnavailableError{Service: service, Reason: reason}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState checks if an error is an invalid state error.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsUnboundName checks if an error is an unbound name error.
func IsUnboundName(err error) bool {
	return errors.Is(err, ErrUnboundName)
}

// IsPersistence checks if an error is a persistence error.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsMapping checks if an error is a mapping error.
func IsMapping(err error) bool {
	return errors.Is(err, ErrMapping)
}

// IsUnavailable checks if an error is an unavailable error.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
