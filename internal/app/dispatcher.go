package app

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/app/outbox"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/metrics"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

const instrumentationName = "github.com/jsamuelsen/go-cleanarch-kit/internal/app"

// DispatcherConfig holds the dispatcher's dependencies. Metrics and Logger are optional.
type DispatcherConfig struct {
	Sessions   ports.SessionOpener
	Registries *ports.Registries
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Dispatcher runs use cases by name, one unit of work each. It opens a
// session, builds the request, commits when the use case succeeds and then
// flushes the request outbox. The session is always closed, which rolls back
// anything left uncommitted.
type Dispatcher struct {
	sessions   ports.SessionOpener
	registries *ports.Registries
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		sessions:   cfg.Sessions,
		registries: cfg.Registries,
		metrics:    cfg.Metrics,
		logger:     logger.With(slog.String("component", "dispatcher")),
		tracer:     otel.Tracer(instrumentationName),
	}
}

// Registries returns the registries requests are built from.
func (d *Dispatcher) Registries() *ports.Registries {
	return d.registries
}

// Execute runs the named use case with untyped parameters.
func (d *Dispatcher) Execute(ctx context.Context, name string, params any) (any, error) {
	return d.run(ctx, name, func(ctx context.Context, deps ports.Deps) (any, error) {
		binding, err := d.registries.UseCases.Get(name)
		if err != nil {
			return nil, err
		}

		return binding.Execute(ctx, deps, params)
	})
}

// Dispatch runs the named use case with typed parameters and response.
func Dispatch[P, R any](ctx context.Context, d *Dispatcher, name string, params P) (R, error) {
	var zero R

	out, err := d.run(ctx, name, func(ctx context.Context, deps ports.Deps) (any, error) {
		return ports.ExecuteUseCase[P, R](ctx, d.registries.UseCases, name, deps, params)
	})
	if err != nil {
		return zero, err
	}

	return responseAs[R](name, out)
}

// responseAs converts a use case result to R. A nil result is the zero R.
func responseAs[R any](name string, out any) (R, error) {
	var zero R
	if out == nil {
		return zero, nil
	}

	res, ok := out.(R)
	if !ok {
		return zero, domain.NewInvalidStateError("use case "+name, "read response",
			fmt.Sprintf("response is %T, not %s", out, reflect.TypeFor[R]()))
	}

	return res, nil
}

func (d *Dispatcher) run(ctx context.Context, name string, call func(context.Context, ports.Deps) (any, error)) (out any, err error) {
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "usecase "+name, trace.WithAttributes(attribute.String("use_case", name)))
	ctx = logging.WithUseCase(ctx, name)
	logger := logging.FromContext(ctx)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
		d.metrics.ObserveUseCase(name, start, err)
	}()

	sess, err := d.sessions.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			logger.WarnContext(ctx, "closing session failed", slog.Any("error", cerr))
		}
	}()

	ob := outbox.New()
	ctx = outbox.WithContext(ctx, ob)

	deps := ports.Deps{
		Repos:    d.registries.Repositories,
		Services: d.registries.Services,
		Session:  sess,
	}

	out, err = call(ctx, deps)
	if err != nil {
		if dropped := ob.Discard(); dropped > 0 {
			logger.DebugContext(ctx, "discarded staged actions", slog.Int("count", dropped))
		}

		logFailure(ctx, logger, err)

		return nil, err
	}

	if err := sess.Commit(ctx); err != nil {
		ob.Discard()
		return nil, domain.NewPersistenceError("session", "commit", err)
	}

	// The unit is durable now; a failed side effect is reported but does not
	// turn the request into a failure.
	if err := ob.Flush(ctx); err != nil {
		logger.WarnContext(ctx, "flushing outbox failed", slog.Any("error", err))
	}

	logger.InfoContext(ctx, "use case completed", slog.Duration("duration", time.Since(start)))

	return out, nil
}

// logFailure logs caller mistakes quietly and infrastructure failures loudly.
func logFailure(ctx context.Context, logger *slog.Logger, err error) {
	step, _ := GetExecutionStep(err)
	attrs := []any{slog.Any("error", err), slog.String("step", string(step))}

	switch {
	case domain.IsValidation(err), domain.IsNotFound(err), domain.IsConflict(err),
		domain.IsInvalidState(err), domain.IsMapping(err):
		logger.InfoContext(ctx, "use case rejected", attrs...)
	default:
		logger.ErrorContext(ctx, "use case failed", attrs...)
	}
}
