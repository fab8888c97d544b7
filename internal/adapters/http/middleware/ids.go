// Package middleware provides the gin middleware chain for the HTTP adapter.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
)

// Propagated ID headers. The request ID names one hop; the correlation ID
// follows a business transaction across services.
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// gin context keys.
const (
	ContextKeyRequestID     = "request_id"
	ContextKeyCorrelationID = "correlation_id"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyCorrelationID
)

// propagatedID describes one header-borne identifier.
type propagatedID struct {
	header string
	ginKey string
	ctxKey ctxKey
	enrich func(context.Context, string) context.Context
}

var (
	requestIDSpec     = propagatedID{HeaderRequestID, ContextKeyRequestID, ctxKeyRequestID, logging.WithRequestID}
	correlationIDSpec = propagatedID{HeaderCorrelationID, ContextKeyCorrelationID, ctxKeyCorrelationID, logging.WithCorrelationID}
)

// RequestID reuses the caller's X-Request-ID or generates a UUID, echoes it
// on the response and attaches it to the request context and its logger.
func RequestID() gin.HandlerFunc {
	return requestIDSpec.middleware()
}

// CorrelationID does the same for X-Correlation-ID. The service that
// generates the ID is the origin of the transaction.
func CorrelationID() gin.HandlerFunc {
	return correlationIDSpec.middleware()
}

func (p propagatedID) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(p.header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(p.ginKey, id)
		c.Header(p.header, id)

		ctx := context.WithValue(c.Request.Context(), p.ctxKey, id)
		c.Request = c.Request.WithContext(p.enrich(ctx, id))

		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationID returns the correlation ID set by CorrelationID, or "".
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}

// RequestIDFromContext returns the request ID carried by ctx. Outbound
// clients use it to propagate the header downstream.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxKeyRequestID)
}

// CorrelationIDFromContext returns the correlation ID carried by ctx.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxKeyCorrelationID)
}

// ContextWithRequestID stores a request ID in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// ContextWithCorrelationID stores a correlation ID in ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}

	s, _ := ctx.Value(key).(string)

	return s
}
