package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/sqlstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/userstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/metrics"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink is an EventSink that keeps what it receives.
type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []ports.Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, e ports.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.events = append(s.events, e)

	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType()
	}

	return out
}

type harness struct {
	dispatcher *Dispatcher
	registries ports.Registries
	store      *sqlstore.Store
	sink       *recordingSink
	metrics    *metrics.Metrics
}

// newHarness wires a dispatcher over a migrated SQLite file with the user
// repository, the event publisher and every user use case bound.
func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := sqlstore.Config{
		Driver: sqlstore.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "app.db"),
	}

	m, err := sqlstore.NewMigrator(cfg, userstore.Migrations(), discardLogger())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	met := metrics.New(prometheus.NewRegistry())

	store, err := sqlstore.Open(context.Background(), cfg,
		sqlstore.WithLogger(discardLogger()), sqlstore.WithMetrics(met))
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	sink := &recordingSink{name: "memory"}

	regs := ports.NewRegistries()
	userstore.Register(regs.Repositories, false)
	regs.Services.Register(NewFanOutPublisher(met, sink), ServiceEvents)
	RegisterUserUseCases(regs.UseCases, NewExecutor(discardLogger()))

	return &harness{
		dispatcher: NewDispatcher(DispatcherConfig{
			Sessions:   store,
			Registries: &regs,
			Metrics:    met,
			Logger:     discardLogger(),
		}),
		registries: regs,
		store:      store,
		sink:       sink,
		metrics:    met,
	}
}

func (h *harness) create(t *testing.T, name, email string) int64 {
	t.Helper()

	u, err := Dispatch[CreateUserParams, *domain.User](context.Background(), h.dispatcher, UseCaseCreateUser,
		CreateUserParams{Name: name, Email: email})
	require.NoError(t, err)

	id, ok := u.Identity()
	require.True(t, ok)

	return id
}

func (h *harness) count(t *testing.T) int64 {
	t.Helper()

	n, err := Dispatch[CountUsersParams, int64](context.Background(), h.dispatcher, UseCaseCountUsers, CountUsersParams{})
	require.NoError(t, err)

	return n
}
