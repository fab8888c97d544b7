package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/metrics"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// EventSink is a named event destination.
type EventSink interface {
	ports.EventPublisher
	Name() string
}

// FanOutPublisher delivers each event to every sink concurrently. All sinks are
// attempted even when some fail; the failures are joined.
type FanOutPublisher struct {
	sinks   []EventSink
	metrics *metrics.Metrics
}

var _ ports.EventPublisher = (*FanOutPublisher)(nil)

// NewFanOutPublisher combines sinks. m may be nil.
func NewFanOutPublisher(m *metrics.Metrics, sinks ...EventSink) *FanOutPublisher {
	return &FanOutPublisher{sinks: sinks, metrics: m}
}

// Sinks returns the sink names in delivery order.
func (p *FanOutPublisher) Sinks() []string {
	names := make([]string, len(p.sinks))
	for i, s := range p.sinks {
		names[i] = s.Name()
	}

	return names
}

// Publish implements ports.EventPublisher.
func (p *FanOutPublisher) Publish(ctx context.Context, event ports.Event) error {
	if len(p.sinks) == 0 {
		return nil
	}

	failures := make([]error, len(p.sinks))

	var wg sync.WaitGroup
	for i, sink := range p.sinks {
		wg.Go(func() {
			failures[i] = sink.Publish(ctx, event)
			p.metrics.ObserveEvent(sink.Name(), failures[i])
		})
	}

	wg.Wait()

	var errs []error

	for i, err := range failures {
		if err == nil {
			continue
		}

		logging.FromContext(ctx).WarnContext(ctx, "event sink failed",
			slog.String("sink", p.sinks[i].Name()),
			slog.String("event_type", event.EventType()),
			slog.Any("error", err),
		)

		errs = append(errs, fmt.Errorf("sink %s: %w", p.sinks[i].Name(), err))
	}

	return errors.Join(errs...)
}
