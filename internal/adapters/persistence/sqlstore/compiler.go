package sqlstore

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// likeEscape is the ESCAPE character for generated LIKE patterns. It needs no
// quoting in any supported dialect.
const likeEscape = "!"

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// compiler renders statements for one schema and dialect.
type compiler struct {
	dialect Dialect
	schema  Schema

	args []any
}

func newCompiler(d Dialect, s Schema) *compiler {
	return &compiler{dialect: d, schema: s}
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	return c.dialect.Placeholder(len(c.args))
}

func (c *compiler) table() string {
	return c.dialect.Quote(c.schema.Table)
}

func (c *compiler) columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = c.dialect.Quote(col)
	}

	return strings.Join(quoted, ", ")
}

func (c *compiler) selectPrefix() string {
	return "SELECT " + c.columnList(c.schema.selectColumns()) + " FROM " + c.table()
}

func (c *compiler) byID(id int64) string {
	return c.selectPrefix() + " WHERE " + c.dialect.Quote(c.schema.idColumn()) + " = " + c.bind(id)
}

func (c *compiler) all() string {
	return c.selectPrefix() + " ORDER BY " + c.dialect.Quote(c.schema.idColumn()) + " ASC"
}

func (c *compiler) count() string {
	return "SELECT COUNT(*) FROM " + c.table()
}

// insert renders an INSERT for the given columns, in order.
func (c *compiler) insert(cols []string, rec ports.Record) string {
	var sb strings.Builder

	sb.WriteString("INSERT INTO ")
	sb.WriteString(c.table())

	switch {
	case len(cols) > 0:
		vals := make([]string, len(cols))
		for i, col := range cols {
			vals[i] = c.bind(rec[col])
		}

		fmt.Fprintf(&sb, " (%s) VALUES (%s)", c.columnList(cols), strings.Join(vals, ", "))
	case c.dialect.Name() == DriverMySQL:
		sb.WriteString(" () VALUES ()")
	default:
		sb.WriteString(" DEFAULT VALUES")
	}

	if c.dialect.SupportsReturning() {
		sb.WriteString(" RETURNING ")
		sb.WriteString(c.dialect.Quote(c.schema.idColumn()))
	}

	return sb.String()
}

func (c *compiler) update(id int64, cols []string, rec ports.Record) string {
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = c.dialect.Quote(col) + " = " + c.bind(rec[col])
	}

	return "UPDATE " + c.table() + " SET " + strings.Join(sets, ", ") +
		" WHERE " + c.dialect.Quote(c.schema.idColumn()) + " = " + c.bind(id)
}

func (c *compiler) delete(id int64) string {
	return "DELETE FROM " + c.table() + " WHERE " + c.dialect.Quote(c.schema.idColumn()) + " = " + c.bind(id)
}

// query renders a filtered, sorted and windowed SELECT. Unknown fields and
// malformed operands are domain.ValidationError.
func (c *compiler) query(q ports.Query) (string, error) {
	var sb strings.Builder

	sb.WriteString(c.selectPrefix())

	if len(q.Filters) > 0 {
		terms := make([]string, 0, len(q.Filters))

		for _, cond := range q.Filters {
			term, err := c.condition(cond)
			if err != nil {
				return "", err
			}

			terms = append(terms, term)
		}

		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(terms, " AND "))
	}

	order := make([]string, 0, len(q.Sort)+1)
	idSorted := false

	for _, o := range q.Sort {
		col, ok := c.schema.resolveField(o.Field)
		if !ok {
			return "", domain.NewValidationErrorWithValue("sort", "unknown field", o.Field)
		}

		if col == c.schema.idColumn() {
			idSorted = true
		}

		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}

		order = append(order, c.dialect.Quote(col)+dir)
	}

	// Identity breaks ties so pages are stable.
	if !idSorted {
		order = append(order, c.dialect.Quote(c.schema.idColumn())+" ASC")
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(order, ", "))

	if q.Page != nil {
		if q.Page.Offset < 0 || q.Page.Limit < 0 {
			return "", domain.NewValidationError("page", "offset and limit must not be negative")
		}

		sb.WriteString(c.dialect.Window(q.Page.Limit, q.Page.Offset))
	}

	return sb.String(), nil
}

func (c *compiler) condition(cond ports.Condition) (string, error) {
	col, ok := c.schema.resolveField(cond.Field)
	if !ok {
		return "", domain.NewValidationErrorWithValue("filter", "unknown field", cond.Field)
	}

	qc := c.dialect.Quote(col)

	switch cond.Op {
	case ports.OpEq:
		if cond.Value == nil {
			return qc + " IS NULL", nil
		}

		return qc + " = " + c.bind(cond.Value), nil
	case ports.OpNe:
		if cond.Value == nil {
			return qc + " IS NOT NULL", nil
		}

		return qc + " <> " + c.bind(cond.Value), nil
	case ports.OpGt:
		return qc + " > " + c.bind(cond.Value), nil
	case ports.OpGe:
		return qc + " >= " + c.bind(cond.Value), nil
	case ports.OpLt:
		return qc + " < " + c.bind(cond.Value), nil
	case ports.OpLe:
		return qc + " <= " + c.bind(cond.Value), nil
	case ports.OpIn, ports.OpNotIn:
		return c.membership(qc, cond)
	case ports.OpBetween:
		bounds, err := operands(cond)
		if err != nil {
			return "", err
		}

		if len(bounds) != 2 {
			return "", domain.NewValidationErrorWithValue(cond.Field, "between takes two bounds", cond.Value)
		}

		return qc + " BETWEEN " + c.bind(bounds[0]) + " AND " + c.bind(bounds[1]), nil
	case ports.OpLike:
		s, ok := cond.Value.(string)
		if !ok {
			return "", domain.NewValidationErrorWithValue(cond.Field, "like takes a string pattern", cond.Value)
		}

		return qc + " LIKE " + c.bind(s), nil
	case ports.OpContains, ports.OpPrefix:
		s, ok := cond.Value.(string)
		if !ok {
			return "", domain.NewValidationErrorWithValue(cond.Field, string(cond.Op)+" takes a string", cond.Value)
		}

		pattern := likeEscaper.Replace(s) + "%"
		if cond.Op == ports.OpContains {
			pattern = "%" + pattern
		}

		return qc + " LIKE " + c.bind(pattern) + " ESCAPE '" + likeEscape + "'", nil
	case ports.OpIsNull:
		return qc + " IS NULL", nil
	case ports.OpNotNull:
		return qc + " IS NOT NULL", nil
	default:
		return "", domain.NewValidationErrorWithValue(cond.Field, "unsupported operator", string(cond.Op))
	}
}

func (c *compiler) membership(qc string, cond ports.Condition) (string, error) {
	values, err := operands(cond)
	if err != nil {
		return "", err
	}

	if len(values) == 0 {
		if cond.Op == ports.OpIn {
			return "1 = 0", nil
		}

		return "1 = 1", nil
	}

	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = c.bind(v)
	}

	kw := " IN ("
	if cond.Op == ports.OpNotIn {
		kw = " NOT IN ("
	}

	return qc + kw + strings.Join(ph, ", ") + ")", nil
}

// operands flattens slice and array operands into []any.
func operands(cond ports.Condition) ([]any, error) {
	switch v := cond.Value.(type) {
	case []any:
		return v, nil
	case [2]any:
		return v[:], nil
	}

	rv := reflect.ValueOf(cond.Value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, domain.NewValidationErrorWithValue(cond.Field, string(cond.Op)+" takes a list", cond.Value)
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, nil
}
