package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockHealthChecks struct {
	mock.Mock
}

func (m *mockHealthChecks) CheckAll(ctx context.Context) *ports.HealthResult {
	return m.Called(ctx).Get(0).(*ports.HealthResult)
}

func probe(t *testing.T, h *HealthHandler, path string) *httptest.ResponseRecorder {
	t.Helper()

	engine := gin.New()
	h.Register(engine)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	return w
}

func TestHealthHandler_Live(t *testing.T) {
	w := probe(t, NewHealthHandler(nil, BuildInfo{}, nil), "/-/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name     string
		result   *ports.HealthResult
		wantCode int
		wantBody string
	}{
		{
			name: "store and sinks answer",
			result: &ports.HealthResult{Status: ports.HealthStatusHealthy, Checks: map[string]*ports.CheckResult{
				"database": {Status: ports.HealthStatusHealthy},
				"redis":    {Status: ports.HealthStatusHealthy},
			}},
			wantCode: http.StatusOK,
			wantBody: "healthy",
		},
		{
			name: "a sink is down",
			result: &ports.HealthResult{Status: ports.HealthStatusUnhealthy, Checks: map[string]*ports.CheckResult{
				"database": {Status: ports.HealthStatusHealthy},
				"kafka":    {Status: ports.HealthStatusUnhealthy, Message: "connection refused"},
			}},
			wantCode: http.StatusServiceUnavailable,
			wantBody: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checks := &mockHealthChecks{}
			checks.On("CheckAll", mock.MatchedBy(func(ctx context.Context) bool {
				_, bounded := ctx.Deadline()
				return bounded
			})).Return(tt.result).Once()

			w := probe(t, NewHealthHandler(checks, BuildInfo{}, nil), "/-/ready")

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			checks.AssertExpectations(t)
		})
	}

	t.Run("no checks", func(t *testing.T) {
		w := probe(t, NewHealthHandler(nil, BuildInfo{}, nil), "/-/ready")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHealthHandler_ReadyWithRegistry(t *testing.T) {
	registry := ports.NewHealthRegistry()
	require.NoError(t, registry.Register(ports.HealthCheckFunc{CheckName: "database", Fn: func(context.Context) error { return nil }}))
	require.NoError(t, registry.Register(ports.HealthCheckFunc{
		CheckName: "webhook",
		Fn:        func(context.Context) error { return errors.New("circuit open") },
	}))

	w := probe(t, NewHealthHandler(registry, BuildInfo{}, nil), "/-/ready")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp probeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, ports.HealthStatusHealthy, resp.Checks["database"].Status)
	assert.Equal(t, "circuit open", resp.Checks["webhook"].Message)
}

func TestHealthHandler_Build(t *testing.T) {
	build := NewBuildInfo("1.2.3", "def456", "2024-02-01T12:00:00Z")
	assert.Equal(t, runtime.Version(), build.GoVersion)

	w := probe(t, NewHealthHandler(nil, build, nil), "/-/build")
	require.Equal(t, http.StatusOK, w.Code)

	var got BuildInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, build, got)
}

func TestHealthHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	stored := prometheus.NewCounter(prometheus.CounterOpts{Name: "kit_users_stored_total", Help: "users stored"})
	reg.MustRegister(stored)
	stored.Add(2)

	w := probe(t, NewHealthHandler(nil, BuildInfo{}, reg), "/-/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "kit_users_stored_total 2")
}
