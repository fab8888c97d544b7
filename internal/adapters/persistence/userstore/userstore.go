// Package userstore binds the User value object to the users table.
package userstore

import (
	"embed"
	"io/fs"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/sqlstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// RepositoryName is the key the user repository is registered under.
const RepositoryName = "users"

//go:embed migrations
var migrationFiles embed.FS

// Migrations returns the users schema migrations, one directory per dialect.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err) // embedded path is fixed at compile time
	}

	return sub
}

// Schema describes the users table.
func Schema(strict bool) sqlstore.Schema {
	return sqlstore.Schema{
		Table:    "users",
		IDColumn: "id",
		Columns:  []string{"name", "email", "created_at"},
		ReadOnly: []string{"created_at"},
		Strict:   strict,
	}
}

// Mapper converts users to records. An empty email is stored as NULL so the
// unique index only applies to users that have one.
func Mapper() sqlstore.Mapper[*domain.User] {
	return sqlstore.Mapper[*domain.User]{
		New: func() *domain.User { return &domain.User{} },
		ToRecord: func(u *domain.User) ports.Record {
			rec := ports.Record{"name": u.Name, "email": nil}
			if u.Email != "" {
				rec["email"] = u.Email
			}

			if !u.CreatedAt.IsZero() {
				rec["created_at"] = u.CreatedAt
			}

			return rec
		},
	}
}

// New builds a user repository on a session.
func New(session *sqlstore.Session, strict bool) *sqlstore.Repository[*domain.User] {
	return sqlstore.NewRepository(session, Schema(strict), Mapper())
}

// Factory returns the registry factory for the user repository. Sessions that
// are not SQL sessions are rejected.
func Factory(strict bool) ports.RepositoryFactory {
	return func(sess ports.Session) (any, error) {
		s, err := sqlstore.SessionOf(sess)
		if err != nil {
			return nil, err
		}

		return New(s, strict), nil
	}
}

// Register binds the user repository under RepositoryName.
func Register(repos *ports.Registry[ports.RepositoryFactory], strict bool) {
	repos.Register(Factory(strict), RepositoryName)
}
