package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http/handlers"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http/middleware"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/telemetry"
)

// DefaultRequestTimeout is the default timeout for API requests.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains what the router wires together. Nil handlers leave
// their routes out.
type RouterConfig struct {
	Logger        *slog.Logger
	AuthConfig    *config.AuthConfig
	AppConfig     *config.AppConfig
	HealthHandler *handlers.HealthHandler
	UsersHandler  *handlers.UsersHandler

	// Timeout is the deadline put on every /api/v1 request. Zero disables it.
	Timeout time.Duration
}

// SetupRouter configures the middleware chain and the routes. Middleware runs
// in this order:
//  1. Recovery
//  2. Request ID
//  3. Correlation ID
//  4. OpenTelemetry
//  5. Logging (skips /-/ probes)
//
// Route groups:
//   - /-/ probes, build info and metrics, no auth
//   - /api/v1/users behind a bearer token when auth is enabled; writes also
//     need the configured write scope
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	serviceName := "users-api"
	if cfg.AppConfig != nil && cfg.AppConfig.Name != "" {
		serviceName = cfg.AppConfig.Name
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.CorrelationID(),
	)
	engine.Use(telemetry.Middleware(serviceName)...)
	engine.Use(middleware.Logging())

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.Register(engine)
	}

	auth := middleware.NewAuthenticator(cfg.AuthConfig)

	apiV1 := engine.Group("/api/v1", middleware.Deadline(cfg.Timeout), auth.RequireJWT())

	if cfg.UsersHandler != nil {
		cfg.UsersHandler.RegisterUserRoutes(apiV1, auth.RequireWrite())
	}

	if cfg.Logger != nil {
		cfg.Logger.Debug("routes registered",
			slog.Int("count", len(engine.Routes())),
			slog.Bool("auth", auth.Enabled()),
		)
	}
}

// NewDefaultRouterConfig creates a RouterConfig with the default timeout.
func NewDefaultRouterConfig(
	logger *slog.Logger,
	appCfg *config.AppConfig,
	authCfg *config.AuthConfig,
	healthHandler *handlers.HealthHandler,
	usersHandler *handlers.UsersHandler,
) RouterConfig {
	return RouterConfig{
		Logger:        logger,
		AuthConfig:    authCfg,
		AppConfig:     appCfg,
		HealthHandler: healthHandler,
		UsersHandler:  usersHandler,
		Timeout:       DefaultRequestTimeout,
	}
}
