package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/ncruces/go-sqlite3"
)

// Driver names accepted in Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMySQL    = "mysql"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// Dialect captures the SQL differences between the supported engines.
type Dialect interface {
	// Name identifies the dialect in logs and migrations.
	Name() string

	// DriverName is the database/sql driver to open.
	DriverName() string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string

	// Quote quotes an identifier.
	Quote(ident string) string

	// SupportsReturning reports whether INSERT ... RETURNING yields the identity.
	SupportsReturning() bool

	// Window renders LIMIT and OFFSET. A limit of zero or less means unbounded.
	Window(limit, offset int) string

	// IsUniqueViolation classifies a driver error.
	IsUniqueViolation(err error) bool
}

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite, "sqlite3":
		return sqliteDialect{}, nil
	case DriverPostgres, "postgresql":
		return postgresDialect{driver: "postgres"}, nil
	case DriverPgx:
		return postgresDialect{driver: "pgx"}, nil
	case DriverMySQL:
		return mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return DriverSQLite }
func (sqliteDialect) DriverName() string { return "sqlite3" }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) Quote(ident string) string { return quoteWith(ident, `"`) }
func (sqliteDialect) SupportsReturning() bool { return true }

func (sqliteDialect) Window(limit, offset int) string {
	if limit <= 0 {
		limit = -1
	}

	return windowClause(strconv.Itoa(limit), offset)
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	return errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) || errors.Is(err, sqlite3.CONSTRAINT_PRIMARYKEY)
}

// postgresDialect serves both lib/pq and the pgx stdlib driver.
type postgresDialect struct {
	driver string
}

func (postgresDialect) Name() string { return DriverPostgres }
func (d postgresDialect) DriverName() string { return d.driver }
func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (postgresDialect) Quote(ident string) string { return quoteWith(ident, `"`) }
func (postgresDialect) SupportsReturning() bool { return true }

func (postgresDialect) Window(limit, offset int) string {
	if limit <= 0 {
		return windowClause("ALL", offset)
	}

	return windowClause(strconv.Itoa(limit), offset)
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	return false
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return DriverMySQL }
func (mysqlDialect) DriverName() string { return "mysql" }
func (mysqlDialect) Placeholder(int) string { return "?" }
func (mysqlDialect) Quote(ident string) string { return quoteWith(ident, "`") }
func (mysqlDialect) SupportsReturning() bool { return false }

func (mysqlDialect) Window(limit, offset int) string {
	if limit <= 0 {
		// Largest BIGINT UNSIGNED; MySQL has no unbounded LIMIT.
		return windowClause("18446744073709551615", offset)
	}

	return windowClause(strconv.Itoa(limit), offset)
}

func (mysqlDialect) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func quoteWith(ident, q string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

func windowClause(limit string, offset int) string {
	if offset > 0 {
		return " LIMIT " + limit + " OFFSET " + strconv.Itoa(offset)
	}

	return " LIMIT " + limit
}
