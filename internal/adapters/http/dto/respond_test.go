package dto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
)

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantDetails map[string]string
	}{
		{name: "nil", err: nil, wantStatus: http.StatusOK},
		{
			name:        "validation with field",
			err:         domain.NewValidationError("email", "invalid format"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    ErrorCodeValidation,
			wantDetails: map[string]string{"email": "invalid format"},
		},
		{
			name:       "validation without field",
			err:        domain.NewValidationError("", "invalid input"),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeValidation,
		},
		{
			name:        "mapping",
			err:         domain.NewMappingError("user", "nickname", "no column"),
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    ErrorCodeMapping,
			wantDetails: map[string]string{"nickname": "no column"},
		},
		{
			name:       "wrapped not found",
			err:        fmt.Errorf("perform: %w", domain.NewNotFoundByID("user", 7)),
			wantStatus: http.StatusNotFound,
			wantCode:   ErrorCodeNotFound,
		},
		{
			name:       "deadline",
			err:        fmt.Errorf("query: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrorCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := MapDomainError(tt.err)
			assert.Equal(t, tt.wantStatus, status)

			if tt.err == nil {
				assert.Nil(t, resp)
				return
			}

			require.NotNil(t, resp)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantDetails, resp.Error.Details)
		})
	}
}

func TestAbortWithError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Request-ID", "req-1")

	AbortWithError(c, domain.NewUnavailableError("redis", "dial tcp: refused"))

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrorCodeUnavailable, resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "refused")
	assert.Equal(t, "req-1", resp.TraceID)
}

func TestAbortWithErrorCode(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	AbortWithErrorCode(c, ErrorCodeUnauthorized, "authentication required")

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "authentication required")
}

func TestRespondWithBindingError(t *testing.T) {
	type body struct {
		Name string `json:"name" validate:"required"`
	}

	tests := []struct {
		name        string
		payload     string
		wantCode    string
		wantDetails bool
	}{
		{name: "malformed", payload: "{", wantCode: ErrorCodeBadRequest},
		{name: "missing field", payload: "{}", wantCode: ErrorCodeValidation, wantDetails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			c.Request.Header.Set("Content-Type", "application/json")

			var b body
			err := BindAndValidate(c, &b)
			require.Error(t, err)

			RespondWithBindingError(c, err)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)

			if tt.wantDetails {
				assert.Equal(t, "is required", resp.Error.Details["name"])
			}
		})
	}
}
