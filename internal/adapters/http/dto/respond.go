package dto

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
)

// ContextKeyTraceID is the gin context key that overrides the trace ID in responses.
const ContextKeyTraceID = "trace_id"

// GetTraceID returns the trace ID for the response envelope. A value set on
// the gin context wins, then the active span, then the request ID header.
func GetTraceID(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyTraceID); ok {
		s, _ := v.(string)
		return s
	}

	if c.Request == nil {
		return ""
	}

	if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	return c.GetHeader("X-Request-ID")
}

// MapDomainError maps a domain error to an HTTP status code and error response.
// Conflict is tested before persistence because a unique-key violation is both.
// Storage and wiring failures get a generic message to avoid leaking internals.
func MapDomainError(err error) (int, *ErrorResponse) {
	if err == nil {
		return http.StatusOK, nil
	}

	switch {
	case domain.IsValidation(err):
		resp := NewErrorResponse(ErrorCodeValidation, err.Error())

		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) && validationErr.Field != "" {
			resp.Error.Details = map[string]string{validationErr.Field: validationErr.Message}
		}

		return http.StatusBadRequest, resp

	case domain.IsMapping(err):
		resp := NewErrorResponse(ErrorCodeMapping, err.Error())

		var mappingErr *domain.MappingError
		if errors.As(err, &mappingErr) {
			resp.Error.Details = map[string]string{mappingErr.Field: mappingErr.Reason}
		}

		return http.StatusUnprocessableEntity, resp

	case domain.IsNotFound(err):
		return http.StatusNotFound, NewErrorResponse(ErrorCodeNotFound, err.Error())

	case domain.IsConflict(err):
		return http.StatusConflict, NewErrorResponse(ErrorCodeConflict, err.Error())

	case domain.IsInvalidState(err):
		return http.StatusConflict, NewErrorResponse(ErrorCodeInvalidState, err.Error())

	case domain.IsUnavailable(err):
		return http.StatusServiceUnavailable, NewErrorResponse(
			ErrorCodeUnavailable,
			"a dependency is temporarily unavailable",
		)

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, NewErrorResponse(ErrorCodeTimeout, "request timeout exceeded")

	case domain.IsPersistence(err):
		return http.StatusInternalServerError, NewErrorResponse(
			ErrorCodePersistence,
			"the change could not be stored",
		)

	default:
		return http.StatusInternalServerError, NewErrorResponse(
			ErrorCodeInternal,
			"an internal error occurred",
		)
	}
}

// HandleError writes the mapped error response. Server-side failures are
// logged with the full error since the response hides it.
func HandleError(c *gin.Context, err error) {
	status, resp := MapDomainError(err)
	if resp == nil {
		return
	}

	resp.WithTraceID(GetTraceID(c))
	logServerError(c, status, err, resp.TraceID)
	c.JSON(status, resp)
}

// AbortWithError aborts the handler chain with the mapped error response.
func AbortWithError(c *gin.Context, err error) {
	status, resp := MapDomainError(err)
	if resp == nil {
		c.Abort()
		return
	}

	resp.WithTraceID(GetTraceID(c))
	logServerError(c, status, err, resp.TraceID)
	c.AbortWithStatusJSON(status, resp)
}

// RespondWithErrorCode writes an error response for adapter-level failures
// that do not originate from the domain, such as a malformed path parameter.
func RespondWithErrorCode(c *gin.Context, code, message string) {
	c.JSON(HTTPStatusFromCode(code), NewErrorResponse(code, message).WithTraceID(GetTraceID(c)))
}

// AbortWithErrorCode aborts the handler chain with a specific error code.
func AbortWithErrorCode(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(HTTPStatusFromCode(code), NewErrorResponse(code, message).WithTraceID(GetTraceID(c)))
}

// RespondWithValidationErrors writes a 400 response with field-level details.
func RespondWithValidationErrors(c *gin.Context, fieldErrors map[string]string) {
	c.JSON(http.StatusBadRequest, NewErrorResponseWithDetails(
		ErrorCodeValidation,
		"request validation failed",
		fieldErrors,
	).WithTraceID(GetTraceID(c)))
}

// RespondWithBindingError writes the response for a failed BindAndValidate:
// field details for tag failures, a bad request for undecodable input.
func RespondWithBindingError(c *gin.Context, err error) {
	if fields := FieldErrors(err); len(fields) > 0 {
		RespondWithValidationErrors(c, fields)
		return
	}

	RespondWithErrorCode(c, ErrorCodeBadRequest, err.Error())
}

func logServerError(c *gin.Context, status int, err error, traceID string) {
	if status < http.StatusInternalServerError || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout {
		return
	}

	logging.FromContext(c.Request.Context()).ErrorContext(c.Request.Context(), "request failed",
		"error", err.Error(),
		"status", status,
		"trace_id", traceID,
	)
}
