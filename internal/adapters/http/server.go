// Package http is the gin adapter that exposes the user use cases.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
)

// Server is a gin engine behind an http.Server that drains on shutdown.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	log    *slog.Logger
}

// New builds a server for cfg. Request bodies are capped at cfg.MaxRequestSize.
func New(cfg *config.ServerConfig, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(limitBody(cfg.MaxRequestSize))

	return &Server{
		engine: engine,
		log:    logger,
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           engine,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Engine is where routes are registered.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Run listens on Addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http server: listening on %s: %w", s.srv.Addr, err)
	}

	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve serves on ln until ctx is done, then stops accepting connections and
// waits up to shutdownTimeout for in-flight requests. A listener failure ends
// it early.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	served := make(chan error, 1)

	go func() {
		s.log.Info("http server listening",
			slog.String("addr", ln.Addr().String()),
			slog.Duration("read_timeout", s.srv.ReadTimeout),
			slog.Duration("write_timeout", s.srv.WriteTimeout),
		)

		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			served <- fmt.Errorf("http server: %w", err)
		}

		close(served)
	}()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	s.log.Info("http server draining", slog.Duration("timeout", shutdownTimeout))

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http server: shutdown: %w", err)
	}

	s.log.Info("http server stopped")

	return <-served
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
