package sqlstore

import (
	"slices"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// DefaultIDColumn is used when a schema does not name its identity column.
const DefaultIDColumn = "id"

// Schema describes the table a repository reads and writes.
type Schema struct {
	// Table is the unquoted table name.
	Table string

	// IDColumn holds the engine-assigned identity. Defaults to "id".
	IDColumn string

	// Columns lists every other column, in select order.
	Columns []string

	// ReadOnly lists columns the engine populates; they are read but never written.
	ReadOnly []string

	// Strict turns fields without a column into domain.MappingError in both
	// directions. When false they are dropped on write and kept as additional
	// properties on read.
	Strict bool
}

func (s Schema) idColumn() string {
	if s.IDColumn == "" {
		return DefaultIDColumn
	}

	return s.IDColumn
}

func (s Schema) hasColumn(name string) bool {
	return name == s.idColumn() || slices.Contains(s.Columns, name)
}

func (s Schema) writable(name string) bool {
	return name != s.idColumn() && slices.Contains(s.Columns, name) && !slices.Contains(s.ReadOnly, name)
}

// resolveField maps a query field to its column. The identity can be addressed
// by column name or by domain.IdentityKey.
func (s Schema) resolveField(field string) (string, bool) {
	if field == domain.IdentityKey {
		return s.idColumn(), true
	}

	return field, s.hasColumn(field)
}

func (s Schema) selectColumns() []string {
	return append([]string{s.idColumn()}, s.Columns...)
}

// Mapper converts between a value object and the record of its typed fields.
// The repository adds the identity and the additional properties itself.
type Mapper[T domain.Entity] struct {
	// New returns an empty value to decode a record into.
	New func() T

	// ToRecord returns the typed fields keyed by column.
	ToRecord func(v T) ports.Record
}
