package clients

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http/middleware"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
)

const scope = "github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/clients"

// Fallbacks for zero-valued settings.
const (
	fallbackTimeout         = 30 * time.Second
	fallbackIdleConns       = 100
	fallbackIdleConnsByHost = 10
	fallbackIdleConnTimeout = 90 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL prefixes every request path.
	BaseURL string

	// ServiceName names the destination in logs, spans and metrics.
	ServiceName string

	// Timeout bounds a single attempt, not the whole delivery.
	Timeout time.Duration

	Retry     config.RetryConfig
	Transport config.TransportConfig
	Circuit   config.CircuitBreakerConfig

	// AuthFunc, when set, decorates every attempt, so rotated credentials
	// are picked up by retries.
	AuthFunc func(*http.Request)

	Logger *slog.Logger
}

// Client sends requests to one destination with retries, a circuit breaker,
// trace propagation and request/correlation ID forwarding.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     Config
	log     *slog.Logger
	breaker *CircuitBreaker
	tracer  trace.Tracer

	duration metric.Float64Histogram
	requests metric.Int64Counter
}

// New validates cfg and builds a Client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		cfg:     *cfg,
		tracer:  otel.Tracer(scope),
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			MaxFailures:   cfg.Circuit.MaxFailures,
			Timeout:       cfg.Circuit.Timeout,
			HalfOpenLimit: cfg.Circuit.HalfOpenLimit,
		}),
	}

	c.cfg.Timeout = cmp.Or(cfg.Timeout, fallbackTimeout)
	c.cfg.Retry.MaxAttempts = max(cfg.Retry.MaxAttempts, 1)
	c.log = cmp.Or(cfg.Logger, slog.Default()).With(
		slog.String("component", "clients"),
		slog.String("downstream", cfg.ServiceName),
	)

	c.http = &http.Client{
		Timeout: c.cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        cmp.Or(cfg.Transport.MaxIdleConns, fallbackIdleConns),
			MaxIdleConnsPerHost: cmp.Or(cfg.Transport.MaxIdleConnsPerHost, fallbackIdleConnsByHost),
			IdleConnTimeout:     cmp.Or(cfg.Transport.IdleConnTimeout, fallbackIdleConnTimeout),
		},
	}

	if err := c.instrument(); err != nil {
		return nil, err
	}

	c.breaker.OnStateChange(func(from, to State) {
		c.log.Warn("circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return c, nil
}

func (c *Client) instrument() error {
	meter := otel.Meter(scope)

	var err error

	c.duration, err = meter.Float64Histogram("http.client.request.duration",
		metric.WithDescription("Duration of outbound HTTP deliveries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating duration histogram: %w", err)
	}

	c.requests, err = meter.Int64Counter("http.client.request.total",
		metric.WithDescription("Outbound HTTP deliveries by result"),
	)
	if err != nil {
		return fmt.Errorf("creating request counter: %w", err)
	}

	return nil
}

// PostJSON encodes v and posts it to path. The body is held in memory so
// every retry resends it in full.
func (c *Client) PostJSON(ctx context.Context, path string, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.Do(ctx, req)
}

// Do sends req, retrying transport failures and 5xx answers with
// exponential backoff. A 4xx answer is returned to the caller as is.
//
// ErrCircuitOpen is returned without contacting the destination while the
// breaker is open. ErrMaxRetriesExceeded wraps the last failure once every
// attempt has been used.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := logging.FromContext(ctx).With(
		slog.String("downstream", c.cfg.ServiceName),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	if !c.breaker.Allow() {
		c.observe(ctx, req.Method, 0, start, "circuit_open")
		log.Warn("request refused by circuit breaker")

		return nil, ErrCircuitOpen
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method+" "+c.cfg.ServiceName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
			attribute.String("peer.service", c.cfg.ServiceName),
		),
	)
	defer span.End()

	forwardIDs(ctx, req)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.send(ctx, req, log)
	if err != nil {
		c.breaker.RecordFailure()
		span.SetStatus(codes.Error, err.Error())

		if ctx.Err() != nil {
			c.observe(ctx, req.Method, 0, start, "canceled")
			return nil, err
		}

		c.observe(ctx, req.Method, 0, start, "error")
		log.Error("request failed", slog.Duration("duration", time.Since(start)), slog.Any("error", err))

		return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
	}

	c.breaker.RecordSuccess()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, resp.Status)
	}

	c.observe(ctx, req.Method, resp.StatusCode, start, strconv.Itoa(resp.StatusCode/100)+"xx")
	log.Debug("request completed", slog.Int("status", resp.StatusCode), slog.Duration("duration", time.Since(start)))

	return resp, nil
}

// send runs the attempt loop. A cancelled context ends it immediately with
// the context's error.
func (c *Client) send(ctx context.Context, req *http.Request, log *slog.Logger) (*http.Response, error) {
	var lastErr error

	for n := range c.cfg.Retry.MaxAttempts {
		if n > 0 {
			wait := c.backoff(n)
			log.Debug("retrying request", slog.Int("attempt", n+1), slog.Duration("backoff", wait))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

			if err := rewindBody(req); err != nil {
				return nil, err
			}
		}

		if c.cfg.AuthFunc != nil {
			c.cfg.AuthFunc(req)
		}

		resp, err := c.http.Do(req.WithContext(ctx))

		switch {
		case err != nil && !isRetryableError(err):
			return nil, err
		case err != nil:
			lastErr = err
		case resp.StatusCode >= http.StatusInternalServerError:
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server answered %d", resp.StatusCode)
		default:
			return resp, nil
		}

		log.Debug("attempt failed", slog.Int("attempt", n+1), slog.Any("error", lastErr))
	}

	return nil, lastErr
}

// CircuitState reports the breaker's current state.
func (c *Client) CircuitState() State {
	return c.breaker.State()
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

// backoff returns InitialInterval * Multiplier^n, capped at MaxInterval and
// spread by +/- JitterFactor.
func (c *Client) backoff(n int) time.Duration {
	r := c.cfg.Retry
	d := min(float64(r.InitialInterval)*math.Pow(r.Multiplier, float64(n)), float64(r.MaxInterval))
	d += d * r.JitterFactor * (rand.Float64()*2 - 1) //nolint:gosec // jitter only

	return time.Duration(d)
}

func (c *Client) observe(ctx context.Context, method string, status int, start time.Time, result string) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("peer.service", c.cfg.ServiceName),
		attribute.String("result", result),
	}

	if status > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", status))
	}

	opt := metric.WithAttributes(attrs...)
	c.duration.Record(ctx, time.Since(start).Seconds(), opt)
	c.requests.Add(ctx, 1, opt)
}

func forwardIDs(ctx context.Context, req *http.Request) {
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderRequestID, id)
	}

	if id := middleware.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderCorrelationID, id)
	}
}

// rewindBody restores a consumed body from GetBody. Streaming bodies without
// GetBody are resent as they are.
func rewindBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewinding request body: %w", err)
	}

	req.Body = body

	return nil
}

// isRetryableError accepts network timeouts and connection-level failures.
// Context cancellation is never retried.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
