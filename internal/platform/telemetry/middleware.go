package telemetry

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
)

const scope = "github.com/jsamuelsen/go-cleanarch-kit/internal/platform/telemetry"

// HeaderTraceID carries the active trace ID back to the caller.
const HeaderTraceID = "X-Trace-ID"

// Middleware returns the handlers that trace and measure API requests for
// serviceName. otelgin opens the server span. The second handler echoes the
// trace ID in HeaderTraceID, adds it to the request logger and records the
// request instruments. Probe routes under /-/ are not traced.
func Middleware(serviceName string) gin.HandlersChain {
	return gin.HandlersChain{
		otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/-/")
		})),
		observe(newServerInstruments()),
	}
}

type serverInstruments struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// newServerInstruments returns nil, after reporting to the global otel error
// handler, when an instrument cannot be created.
func newServerInstruments() *serverInstruments {
	meter := otel.Meter(scope)

	duration, errDuration := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	total, errTotal := meter.Int64Counter("http.server.request.total",
		metric.WithDescription("HTTP requests served"),
	)
	inFlight, errInFlight := meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("HTTP requests in flight"),
	)

	for _, err := range []error{errDuration, errTotal, errInFlight} {
		if err != nil {
			otel.Handle(err)
			return nil
		}
	}

	return &serverInstruments{duration: duration, total: total, inFlight: inFlight}
}

func observe(in *serverInstruments) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			id := sc.TraceID().String()
			c.Header(HeaderTraceID, id)

			ctx = logging.WithTraceID(ctx, id)
			c.Request = c.Request.WithContext(ctx)
		}

		if in == nil {
			c.Next()
			return
		}

		route := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		}
		start := time.Now()

		in.inFlight.Add(ctx, 1, metric.WithAttributes(route...))
		defer in.inFlight.Add(ctx, -1, metric.WithAttributes(route...))

		c.Next()

		done := metric.WithAttributes(append(route, attribute.Int("http.status_code", c.Writer.Status()))...)
		in.duration.Record(ctx, time.Since(start).Seconds(), done)
		in.total.Add(ctx, 1, done)
	}
}
