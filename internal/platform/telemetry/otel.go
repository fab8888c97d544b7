// Package telemetry wires OpenTelemetry tracing and metrics for the HTTP
// server and exports them over OTLP/gRPC.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
)

const flushTimeout = 5 * time.Second

// Provider owns the SDK providers installed by New. The zero Provider is
// disabled.
type Provider struct {
	stops []func(context.Context) error
}

// newResource describes this service on top of the SDK defaults. The service
// attributes carry no schema URL so they merge with whatever schema the SDK
// version reports.
func newResource(tel config.TelemetryConfig, app config.AppConfig) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(tel.ServiceName),
		semconv.ServiceVersion(app.Version),
		semconv.DeploymentEnvironmentName(app.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	return res, nil
}

// New installs global tracer and meter providers that export to the
// configured OTLP endpoint (an http:// or https:// URL). When telemetry is
// disabled the global no-op providers stay in place.
func New(ctx context.Context, tel config.TelemetryConfig, app config.AppConfig) (*Provider, error) {
	p := &Provider{}
	if !tel.Enabled {
		return p, nil
	}

	res, err := newResource(tel, app)
	if err != nil {
		return nil, err
	}

	spans, err := otlptracegrpc.New(ctx, traceOptions(tel)...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}

	tracer := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spans),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tel.SamplingRate))),
	)
	p.stops = append(p.stops, tracer.Shutdown)

	points, err := otlpmetricgrpc.New(ctx, metricOptions(tel)...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("metric exporter: %w", err), p.Shutdown(ctx))
	}

	meter := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(points)),
	)
	p.stops = append(p.stops, meter.Shutdown)

	otel.SetTracerProvider(tracer)
	otel.SetMeterProvider(meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return p, nil
}

func traceOptions(tel config.TelemetryConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpointURL(tel.Endpoint)}
	if tel.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	return opts
}

func metricOptions(tel config.TelemetryConfig) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpointURL(tel.Endpoint)}
	if tel.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	return opts
}

// Enabled reports whether New installed real providers.
func (p *Provider) Enabled() bool {
	return len(p.stops) > 0
}

// Shutdown flushes pending spans and points. It gives up after a few seconds
// even if ctx allows longer.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	var errs []error
	for _, stop := range p.stops {
		errs = append(errs, stop(ctx))
	}

	p.stops = nil

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}

	return nil
}
