package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/sqlstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/userstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/metrics"
)

// newTestStore creates a migrated SQLite database in a temporary directory.
// In-memory databases are per connection, so a file is used.
func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	cfg := sqlstore.Config{
		Driver: sqlstore.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}

	m, err := sqlstore.NewMigrator(cfg, userstore.Migrations(), nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	store, err := sqlstore.Open(context.Background(), cfg,
		sqlstore.WithMetrics(metrics.New(prometheus.NewRegistry())))
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

// newSession opens a session that is closed when the test ends.
func newSession(t *testing.T, store *sqlstore.Store) *sqlstore.Session {
	t.Helper()

	sess := store.Session()
	t.Cleanup(func() { _ = sess.Close(context.Background()) })

	return sess
}

// countUsers counts in a separate, immediately closed unit of work.
func countUsers(t *testing.T, store *sqlstore.Store) int64 {
	t.Helper()

	ctx := context.Background()
	sess := store.Session()
	defer func() { _ = sess.Close(ctx) }()

	n, err := userstore.New(sess, false).Count(ctx)
	require.NoError(t, err)

	return n
}

func mustUser(t *testing.T, name, email string) *domain.User {
	t.Helper()

	u, err := domain.NewUser(name, email)
	require.NoError(t, err)

	return u
}
