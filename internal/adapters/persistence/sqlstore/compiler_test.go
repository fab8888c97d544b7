package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

var testSchema = Schema{
	Table:    "users",
	Columns:  []string{"name", "email", "created_at"},
	ReadOnly: []string{"created_at"},
}

func TestCompiler_Query(t *testing.T) {
	pg := postgresDialect{driver: "pgx"}

	tests := []struct {
		name     string
		dialect  Dialect
		query    ports.Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "empty",
			dialect: sqliteDialect{},
			query:   ports.Query{},
			wantSQL: `SELECT "id", "name", "email", "created_at" FROM "users" ORDER BY "id" ASC`,
		},
		{
			name:     "filters joined with and",
			dialect:  pg,
			query:    ports.Where(ports.Eq("name", "Ada"), ports.Gt("internal_id", 3)),
			wantSQL:  `SELECT "id", "name", "email", "created_at" FROM "users" WHERE "name" = $1 AND "id" > $2 ORDER BY "id" ASC`,
			wantArgs: []any{"Ada", 3},
		},
		{
			name:     "sort with explicit identity",
			dialect:  sqliteDialect{},
			query:    ports.Query{}.OrderBy(ports.Desc("name"), ports.Asc("id")),
			wantSQL:  `SELECT "id", "name", "email", "created_at" FROM "users" ORDER BY "name" DESC, "id" ASC`,
			wantArgs: nil,
		},
		{
			name:    "mysql window",
			dialect: mysqlDialect{},
			query:   ports.Query{}.Window(ports.PageNumber(3, 10)),
			wantSQL: "SELECT `id`, `name`, `email`, `created_at` FROM `users` ORDER BY `id` ASC LIMIT 10 OFFSET 20",
		},
		{
			name:    "postgres offset only",
			dialect: pg,
			query:   ports.Query{}.Window(ports.Offset(5, 0)),
			wantSQL: `SELECT "id", "name", "email", "created_at" FROM "users" ORDER BY "id" ASC LIMIT ALL OFFSET 5`,
		},
		{
			name:     "in and between",
			dialect:  pg,
			query:    ports.Where(ports.In("name", "a", "b"), ports.Between("id", 1, 9)),
			wantSQL:  `SELECT "id", "name", "email", "created_at" FROM "users" WHERE "name" IN ($1, $2) AND "id" BETWEEN $3 AND $4 ORDER BY "id" ASC`,
			wantArgs: []any{"a", "b", 1, 9},
		},
		{
			name:     "typed slice operand",
			dialect:  sqliteDialect{},
			query:    ports.Where(ports.Condition{Field: "id", Op: ports.OpNotIn, Value: []int64{4, 5}}),
			wantSQL:  `SELECT "id", "name", "email", "created_at" FROM "users" WHERE "id" NOT IN (?, ?) ORDER BY "id" ASC`,
			wantArgs: []any{int64(4), int64(5)},
		},
		{
			name:     "contains escapes wildcards",
			dialect:  sqliteDialect{},
			query:    ports.Where(ports.Contains("email", "50%_off!")),
			wantSQL:  `SELECT "id", "name", "email", "created_at" FROM "users" WHERE "email" LIKE ? ESCAPE '!' ORDER BY "id" ASC`,
			wantArgs: []any{"%50!%!_off!!%"},
		},
		{
			name:    "null checks",
			dialect: sqliteDialect{},
			query:   ports.Where(ports.Ne("email", nil), ports.NotNull("created_at")),
			wantSQL: `SELECT "id", "name", "email", "created_at" FROM "users" WHERE "email" IS NOT NULL AND "created_at" IS NOT NULL ORDER BY "id" ASC`,
		},
		{
			name:    "empty not in matches everything",
			dialect: sqliteDialect{},
			query:   ports.Where(ports.NotIn("name")),
			wantSQL: `SELECT "id", "name", "email", "created_at" FROM "users" WHERE 1 = 1 ORDER BY "id" ASC`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCompiler(tt.dialect, testSchema)

			got, err := c.query(tt.query)

			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, got)
			assert.Equal(t, tt.wantArgs, c.args)
		})
	}
}

func TestCompiler_QueryErrors(t *testing.T) {
	tests := []struct {
		name  string
		query ports.Query
	}{
		{"unknown filter field", ports.Where(ports.Eq("password", "x"))},
		{"unknown sort field", ports.Query{}.OrderBy(ports.Asc("password"))},
		{"negative limit", ports.Query{Page: &ports.Page{Limit: -1}}},
		{"in without list", ports.Where(ports.Condition{Field: "name", Op: ports.OpIn, Value: "Ada"})},
		{"between with three bounds", ports.Where(ports.Condition{Field: "id", Op: ports.OpBetween, Value: []any{1, 2, 3}})},
		{"like with number", ports.Where(ports.Condition{Field: "name", Op: ports.OpLike, Value: 7})},
		{"prefix with number", ports.Where(ports.Condition{Field: "name", Op: ports.OpPrefix, Value: 7})},
		{"unknown operator", ports.Where(ports.Condition{Field: "name", Op: "regex"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCompiler(sqliteDialect{}, testSchema).query(tt.query)

			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestCompiler_Writes(t *testing.T) {
	rec := ports.Record{"name": "Ada", "email": nil}

	t.Run("sqlite insert returns identity", func(t *testing.T) {
		c := newCompiler(sqliteDialect{}, testSchema)
		got := c.insert([]string{"name", "email"}, rec)

		assert.Equal(t, `INSERT INTO "users" ("name", "email") VALUES (?, ?) RETURNING "id"`, got)
		assert.Equal(t, []any{"Ada", nil}, c.args)
	})

	t.Run("mysql insert without columns", func(t *testing.T) {
		c := newCompiler(mysqlDialect{}, testSchema)
		assert.Equal(t, "INSERT INTO `users` () VALUES ()", c.insert(nil, rec))
	})

	t.Run("postgres insert without columns", func(t *testing.T) {
		c := newCompiler(postgresDialect{driver: "postgres"}, testSchema)
		assert.Equal(t, `INSERT INTO "users" DEFAULT VALUES RETURNING "id"`, c.insert(nil, rec))
	})

	t.Run("update", func(t *testing.T) {
		c := newCompiler(postgresDialect{driver: "postgres"}, testSchema)
		got := c.update(7, []string{"name"}, rec)

		assert.Equal(t, `UPDATE "users" SET "name" = $1 WHERE "id" = $2`, got)
		assert.Equal(t, []any{"Ada", int64(7)}, c.args)
	})

	t.Run("delete", func(t *testing.T) {
		c := newCompiler(mysqlDialect{}, testSchema)
		assert.Equal(t, "DELETE FROM `users` WHERE `id` = ?", c.delete(7))
	})
}

func TestSchema(t *testing.T) {
	assert.True(t, testSchema.hasColumn("id"))
	assert.True(t, testSchema.hasColumn("email"))
	assert.False(t, testSchema.hasColumn("internal_id"))

	assert.True(t, testSchema.writable("name"))
	assert.False(t, testSchema.writable("id"))
	assert.False(t, testSchema.writable("created_at"))

	col, ok := testSchema.resolveField(domain.IdentityKey)
	assert.True(t, ok)
	assert.Equal(t, "id", col)

	custom := Schema{Table: "t", IDColumn: "pk"}
	assert.Equal(t, []string{"pk"}, custom.selectColumns())
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver     string
		wantName   string
		wantDriver string
		wantErr    bool
	}{
		{driver: "sqlite", wantName: DriverSQLite, wantDriver: "sqlite3"},
		{driver: "sqlite3", wantName: DriverSQLite, wantDriver: "sqlite3"},
		{driver: "postgres", wantName: DriverPostgres, wantDriver: "postgres"},
		{driver: "postgresql", wantName: DriverPostgres, wantDriver: "postgres"},
		{driver: "pgx", wantName: DriverPostgres, wantDriver: "pgx"},
		{driver: "mysql", wantName: DriverMySQL, wantDriver: "mysql"},
		{driver: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := DialectFor(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, d.Name())
			assert.Equal(t, tt.wantDriver, d.DriverName())
		})
	}
}

func TestDialect_Window(t *testing.T) {
	assert.Equal(t, " LIMIT 10", sqliteDialect{}.Window(10, 0))
	assert.Equal(t, " LIMIT -1 OFFSET 4", sqliteDialect{}.Window(0, 4))
	assert.Equal(t, " LIMIT ALL OFFSET 4", postgresDialect{}.Window(0, 4))
	assert.Equal(t, " LIMIT 18446744073709551615 OFFSET 4", mysqlDialect{}.Window(0, 4))
}

func TestDialect_Quote(t *testing.T) {
	assert.Equal(t, `"we""ird"`, sqliteDialect{}.Quote(`we"ird`))
	assert.Equal(t, "`we``ird`", mysqlDialect{}.Quote("we`ird"))
	assert.Equal(t, "$3", postgresDialect{}.Placeholder(3))
}

func TestDialect_IsUniqueViolation(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("exec: %w", err) }

	assert.True(t, postgresDialect{}.IsUniqueViolation(wrap(&pq.Error{Code: "23505"})))
	assert.False(t, postgresDialect{}.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.True(t, postgresDialect{}.IsUniqueViolation(wrap(&pgconn.PgError{Code: "23505"})))
	assert.True(t, mysqlDialect{}.IsUniqueViolation(wrap(&mysql.MySQLError{Number: 1062})))
	assert.False(t, mysqlDialect{}.IsUniqueViolation(&mysql.MySQLError{Number: 1451}))
	assert.False(t, sqliteDialect{}.IsUniqueViolation(errors.New("boom")))
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{
			in:   "/tmp/app.db",
			want: "file:/tmp/app.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate",
		},
		{
			in:   "file:app.db?mode=rwc&_txlock=deferred",
			want: "file:app.db?mode=rwc&_txlock=deferred&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sqliteDSN(tt.in))
		})
	}
}
