//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	kithttp "github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http/handlers"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/bootstrap"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// service is the users API running in-process on a loopback listener.
type service struct {
	app    *bootstrap.App
	server *httptest.Server
	client *http.Client
}

// sqliteConfig returns the default configuration pointed at a fresh database
// file in dir with only the memory event sink.
func sqliteConfig(dir string) (*config.Config, error) {
	cfg, err := bootstrap.LoadConfig("test")
	if err != nil {
		return nil, err
	}

	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = filepath.Join(dir, "users.db")
	cfg.Events.Sinks = []string{"memory"}

	return cfg, nil
}

func startService(ctx context.Context, cfg *config.Config) (*service, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if os.Getenv("INTEGRATION_LOGS") != "" {
		logger = bootstrap.NewLogger(cfg, os.Stderr)
	}

	a, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	kithttp.SetupRouter(engine, kithttp.NewDefaultRouterConfig(
		logger,
		&cfg.App,
		&cfg.Auth,
		handlers.NewHealthHandler(a.Health, handlers.NewBuildInfo("integration", "", ""), a.Gatherer),
		handlers.NewUsersHandler(a.Dispatcher),
	))

	return &service{
		app:    a,
		server: httptest.NewServer(engine),
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *service) Close() error {
	s.server.Close()
	return s.app.Close()
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil.
func (s *service) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}

		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.server.URL+path, reader)
	if err != nil {
		return 0, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding %s: %w", raw, err)
		}
	}

	return resp.StatusCode, nil
}
