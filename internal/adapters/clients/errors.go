// Package clients provides the instrumented HTTP client used for outbound
// deliveries such as webhooks.
package clients

import "errors"

// Transport-level failures. The acl package translates them into domain errors.
var (
	// ErrCircuitOpen means the destination kept failing and calls are being refused.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last error after every attempt failed.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
