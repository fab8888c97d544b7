package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrator applies the schema migrations for one dialect. Migrations live in a
// sub-directory of the supplied file system named after the dialect
// (sqlite, postgres, mysql).
//
// It uses its own connection pool so that the migration lock never holds a
// connection the store needs.
type Migrator struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// NewMigrator opens a dedicated connection and prepares the migration source.
func NewMigrator(cfg Config, migrations fs.FS, logger *slog.Logger) (*Migrator, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	dsn := cfg.DSN
	if dialect.Name() == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening migration connection: %w", err)
	}

	driver, err := migrationDriver(db, cfg.Driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	src, err := iofs.New(migrations, dialect.Name())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reading %s migrations: %w", dialect.Name(), err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect.Name(), driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preparing migrations: %w", err)
	}

	logger = logger.With(slog.String("component", "migrator"), slog.String("dialect", dialect.Name()))
	m.Log = migrateLogger{logger: logger}

	return &Migrator{m: m, logger: logger}, nil
}

func migrationDriver(db *sql.DB, driver string) (database.Driver, error) {
	var (
		d   database.Driver
		err error
	)

	switch driver {
	case DriverSQLite, "sqlite3":
		d, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DriverPostgres, "postgresql":
		d, err = migratepostgres.WithInstance(db, &migratepostgres.Config{})
	case DriverPgx:
		d, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	case DriverMySQL:
		d, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err != nil {
		return nil, fmt.Errorf("preparing %s migration driver: %w", driver, err)
	}

	return d, nil
}

// Up applies every pending migration. Being already current is not an error.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	m.logVersion("migrations applied")

	return nil
}

// Down reverts every applied migration.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("reverting migrations: %w", err)
	}

	m.logVersion("migrations reverted")

	return nil
}

// Steps applies n migrations forward, or -n backward.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil {
		return fmt.Errorf("migrating %d steps: %w", n, err)
	}

	return nil
}

// Version returns the applied version and whether the last migration failed
// halfway. A database without migrations reports version zero.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	return version, dirty, err
}

// Close releases the migration source and connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Migrator) logVersion(msg string) {
	version, dirty, err := m.Version()
	if err != nil {
		m.logger.Warn("reading migration version failed", slog.String("error", err.Error()))
		return
	}

	m.logger.Info(msg, slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
}

// migrateLogger adapts slog to migrate.Logger.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return false
}
