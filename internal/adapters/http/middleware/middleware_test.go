package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http/dto"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authConfig() *config.AuthConfig {
	return &config.AuthConfig{
		Enabled:    true,
		Secret:     "0123456789abcdef0123456789abcdef",
		Issuer:     "kit-test",
		Audience:   "users-api",
		Leeway:     time.Second,
		WriteScope: "users:write",
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	return resp
}

func TestPropagatedIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mw       gin.HandlerFunc
		header   string
		incoming string
		fromGin  func(*gin.Context) string
		fromCtx  func(context.Context) string
	}{
		{name: "request id generated", mw: RequestID(), header: HeaderRequestID, fromGin: GetRequestID, fromCtx: RequestIDFromContext},
		{name: "request id reused", mw: RequestID(), header: HeaderRequestID, incoming: "req-123", fromGin: GetRequestID, fromCtx: RequestIDFromContext},
		{name: "correlation id generated", mw: CorrelationID(), header: HeaderCorrelationID, fromGin: GetCorrelationID, fromCtx: CorrelationIDFromContext},
		{name: "correlation id reused", mw: CorrelationID(), header: HeaderCorrelationID, incoming: "txn-9", fromGin: GetCorrelationID, fromCtx: CorrelationIDFromContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var fromGin, fromCtx string

			router := gin.New()
			router.Use(tt.mw)
			router.GET("/test", func(c *gin.Context) {
				fromGin = tt.fromGin(c)
				fromCtx = tt.fromCtx(c.Request.Context())
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.incoming != "" {
				req.Header.Set(tt.header, tt.incoming)
			}

			router.ServeHTTP(w, req)

			echoed := w.Header().Get(tt.header)
			require.NotEmpty(t, echoed)
			assert.Equal(t, echoed, fromGin)
			assert.Equal(t, echoed, fromCtx)

			if tt.incoming != "" {
				assert.Equal(t, tt.incoming, echoed)
			}
		})
	}
}

func TestContextIDs_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, RequestIDFromContext(context.Background()))

	ctx := ContextWithCorrelationID(ContextWithRequestID(context.Background(), "r"), "c")
	assert.Equal(t, "r", RequestIDFromContext(ctx))
	assert.Equal(t, "c", CorrelationIDFromContext(ctx))
}

func TestClaimsScopes(t *testing.T) {
	t.Parallel()

	c := &Claims{Scope: "users:read  users:write"}

	assert.Equal(t, []string{"users:read", "users:write"}, c.Scopes())
	assert.True(t, c.HasScope("users:write"))
	assert.False(t, c.HasScope("users"))
	assert.True(t, c.HasAllScopes("users:read", "users:write"))
	assert.False(t, c.HasAllScopes("users:read", "admin"))
	assert.True(t, c.HasAnyScope("admin", "users:read"))
	assert.False(t, c.HasAnyScope("admin"))
	assert.True(t, c.HasAllScopes())
}

func TestAuthenticator_IssueAndParse(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(authConfig())

	token, err := auth.Issue("ada", time.Minute, "users:read", "users:write")
	require.NoError(t, err)

	claims, err := auth.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "ada", claims.Subject)
	assert.Equal(t, "kit-test", claims.Issuer)
	assert.True(t, claims.HasAllScopes("users:read", "users:write"))
	assert.NotEmpty(t, claims.ID)
}

func TestAuthenticator_ParseRejects(t *testing.T) {
	t.Parallel()

	cfg := authConfig()
	auth := NewAuthenticator(cfg)

	otherIssuer := *cfg
	otherIssuer.Issuer = "someone-else"

	otherSecret := *cfg
	otherSecret.Secret = "ffffffffffffffffffffffffffffffff"

	expired := NewAuthenticator(cfg)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }

	expiredToken, err := expired.Issue("ada", time.Minute)
	require.NoError(t, err)

	foreignIssuer, err := NewAuthenticator(&otherIssuer).Issue("ada", time.Minute)
	require.NoError(t, err)

	foreignKey, err := NewAuthenticator(&otherSecret).Issue("ada", time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "ada"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		is    error
	}{
		{name: "expired", token: expiredToken, is: jwt.ErrTokenExpired},
		{name: "wrong issuer", token: foreignIssuer, is: jwt.ErrTokenInvalidIssuer},
		{name: "wrong key", token: foreignKey, is: jwt.ErrTokenSignatureInvalid},
		{name: "unsigned", token: none, is: jwt.ErrTokenSignatureInvalid},
		{name: "garbage", token: "not.a.token", is: jwt.ErrTokenMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := auth.Parse(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
		})
	}
}

func TestRequireJWT(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(authConfig())

	reader, err := auth.Issue("grace", time.Minute, "users:read")
	require.NoError(t, err)

	writer, err := auth.Issue("ada", time.Minute, "users:read", "users:write")
	require.NoError(t, err)

	router := gin.New()
	router.Use(auth.RequireJWT())
	router.GET("/users", func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).Subject)
	})
	router.POST("/users", auth.RequireWrite(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	tests := []struct {
		name       string
		method     string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "no header", method: http.MethodGet, wantStatus: http.StatusUnauthorized, wantCode: dto.ErrorCodeUnauthorized},
		{name: "wrong scheme", method: http.MethodGet, header: "Basic " + reader, wantStatus: http.StatusUnauthorized, wantCode: dto.ErrorCodeUnauthorized},
		{name: "bad token", method: http.MethodGet, header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantCode: dto.ErrorCodeUnauthorized},
		{name: "read ok", method: http.MethodGet, header: "Bearer " + reader, wantStatus: http.StatusOK},
		{name: "lowercase scheme", method: http.MethodGet, header: "bearer " + reader, wantStatus: http.StatusOK},
		{name: "write without scope", method: http.MethodPost, header: "Bearer " + reader, wantStatus: http.StatusForbidden, wantCode: dto.ErrorCodeForbidden},
		{name: "write with scope", method: http.MethodPost, header: "Bearer " + writer, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, w).Error.Code)
			}

			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestRequireJWT_Disabled(t *testing.T) {
	t.Parallel()

	for _, auth := range []*Authenticator{NewAuthenticator(nil), NewAuthenticator(&config.AuthConfig{})} {
		router := gin.New()
		router.Use(auth.RequireJWT())
		router.POST("/users", auth.RequireWrite(), func(c *gin.Context) {
			assert.Nil(t, GetClaims(c))
			c.Status(http.StatusCreated)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	}
}

func TestLogging(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(authConfig())
	token, err := auth.Issue("ada", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name      string
		path      string
		status    int
		skip      []string
		wantLevel string
		wantLine  bool
	}{
		{name: "success is info", path: "/api/users", status: http.StatusOK, wantLevel: "INFO", wantLine: true},
		{name: "client error is warn", path: "/api/users", status: http.StatusNotFound, wantLevel: "WARN", wantLine: true},
		{name: "server error is error", path: "/api/users", status: http.StatusInternalServerError, wantLevel: "ERROR", wantLine: true},
		{name: "probe paths are skipped", path: "/-/live", status: http.StatusOK},
		{name: "configured paths are skipped", path: "/favicon.ico", status: http.StatusOK, skip: []string{"/favicon.ico"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			router := gin.New()
			router.Use(func(c *gin.Context) {
				c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), logger))
				c.Next()
			})
			router.Use(auth.RequireJWT(), Logging(tt.skip...))
			router.GET(tt.path, func(c *gin.Context) { c.Status(tt.status) })

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			router.ServeHTTP(httptest.NewRecorder(), req)

			if !tt.wantLine {
				assert.Empty(t, buf.String())
				return
			}

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, tt.wantLevel, line["level"])
			assert.Equal(t, "request completed", line["msg"])
			assert.Equal(t, tt.path, line["route"])
			assert.Equal(t, "ada", line["subject"])
			assert.InDelta(t, float64(tt.status), line["status"], 0)
		})
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(Recovery())
	router.GET("/panic", func(*gin.Context) { panic("boom") })
	router.GET("/written", func(c *gin.Context) {
		c.String(http.StatusAccepted, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, dto.ErrorCodeInternal, decodeError(t, w).Error.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}

func TestDeadline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		d       time.Duration
		wantSet bool
	}{
		{name: "bounded", d: time.Minute, wantSet: true},
		{name: "disabled", d: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var (
				deadline time.Time
				set      bool
			)

			router := gin.New()
			router.Use(Deadline(tt.d))
			router.GET("/users", func(c *gin.Context) {
				deadline, set = c.Request.Context().Deadline()
				c.Status(http.StatusOK)
			})

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users", nil))

			require.Equal(t, tt.wantSet, set)

			if tt.wantSet {
				assert.WithinDuration(t, time.Now().Add(tt.d), deadline, 5*time.Second)
			}
		})
	}
}
