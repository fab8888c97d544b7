package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/metrics"
)

func testEvent(t *testing.T) domain.ChangeEvent {
	t.Helper()

	u, err := domain.NewUser("Ada", "")
	require.NoError(t, err)

	return domain.NewChangeEvent(domain.EventUserCreated, u, nil)
}

func TestFanOutPublisher_DeliversToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	p := NewFanOutPublisher(nil, a, b)

	require.NoError(t, p.Publish(context.Background(), testEvent(t)))
	assert.Equal(t, []string{domain.EventUserCreated}, a.types())
	assert.Equal(t, []string{domain.EventUserCreated}, b.types())
	assert.Equal(t, []string{"a", "b"}, p.Sinks())
}

func TestFanOutPublisher_JoinsFailures(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ok := &recordingSink{name: "ok"}
	down := &recordingSink{name: "down", err: domain.NewUnavailableError("down", "refused")}
	p := NewFanOutPublisher(m, ok, down)

	err := p.Publish(context.Background(), testEvent(t))
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
	assert.ErrorContains(t, err, "sink down")

	assert.Len(t, ok.types(), 1)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EventsPublished.WithLabelValues("ok", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EventsPublished.WithLabelValues("down", "error")), 0)
}

func TestFanOutPublisher_NoSinks(t *testing.T) {
	p := NewFanOutPublisher(nil)
	assert.NoError(t, p.Publish(context.Background(), testEvent(t)))
	assert.Empty(t, p.Sinks())
}
