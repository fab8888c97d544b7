// Package sqlstore implements the repository and session contracts on
// database/sql. SQLite (ncruces), PostgreSQL (lib/pq or pgx) and MySQL are
// supported through dialects.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Database drivers, selected by Config.Driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/metrics"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

const (
	// sqliteBusyTimeoutMS bounds how long a connection waits on a locked database file.
	sqliteBusyTimeoutMS = 5000

	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 5
)

// Config configures a store.
type Config struct {
	// Driver is one of sqlite, postgres, pgx or mysql.
	Driver string

	// DSN is the driver data source name. For sqlite it may be a plain file path.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Strict enables strict mapping on repositories built from this store.
	Strict bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithMetrics records repository and session metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// Store owns the connection pool and opens sessions on it.
type Store struct {
	db      *sql.DB
	dialect Dialect
	strict  bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var (
	_ ports.SessionOpener = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}

	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if dialect.Name() == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect.Name(), err)
	}

	configurePool(db, dialect, cfg)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", dialect.Name(), err)
	}

	s := New(db, dialect, opts...)
	s.strict = cfg.Strict

	s.logger.Info("database connected",
		slog.String("dialect", dialect.Name()),
		slog.Int("max_open_conns", db.Stats().MaxOpenConnections),
	)

	return s, nil
}

// New wraps an existing pool.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.logger = s.logger.With(slog.String("component", "sqlstore"))

	return s
}

func configurePool(db *sql.DB, dialect Dialect, cfg Config) {
	maxOpen := cfg.MaxOpenConns
	maxIdle := cfg.MaxIdleConns

	// SQLite serializes writers; one connection avoids SQLITE_BUSY between units of work.
	if dialect.Name() == DriverSQLite {
		maxOpen, maxIdle = 1, 1
	}

	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}

	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// sqliteDSN turns a path into a URI and adds the pragmas every connection needs.
func sqliteDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	if !strings.Contains(dsn, "_pragma=foreign_keys") {
		dsn += sep + "_pragma=foreign_keys(1)"
		sep = "&"
	}

	if !strings.Contains(dsn, "_pragma=busy_timeout") {
		dsn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, sqliteBusyTimeoutMS)
		sep = "&"
	}

	if !strings.Contains(dsn, "_txlock=") {
		dsn += sep + "_txlock=immediate"
	}

	return dsn
}

// Session returns a new unit of work.
func (s *Store) Session() *Session {
	return &Session{db: s.db, dialect: s.dialect, metrics: s.metrics}
}

// OpenSession implements ports.SessionOpener.
func (s *Store) OpenSession(_ context.Context) (ports.Session, error) {
	return s.Session(), nil
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Strict reports whether repositories should map strictly.
func (s *Store) Strict() bool {
	return s.strict
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "database"
}

// Check implements ports.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// SessionOf returns the SQL session behind a ports.Session.
func SessionOf(sess ports.Session) (*Session, error) {
	s, ok := sess.(*Session)
	if !ok {
		return nil, fmt.Errorf("session %T is not a SQL session", sess)
	}

	return s, nil
}
