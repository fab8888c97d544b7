package ports

import "strings"

// Operator is a comparison used in a filter condition.
type Operator string

// Supported operators.
const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGe       Operator = "ge"
	OpLt       Operator = "lt"
	OpLe       Operator = "le"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpBetween  Operator = "between"
	OpLike     Operator = "like"     // raw LIKE pattern
	OpContains Operator = "contains" // substring match
	OpPrefix   Operator = "prefix"   // starts with
	OpIsNull   Operator = "is_null"
	OpNotNull  Operator = "not_null"
)

// Condition is one filter term: field op value.
// Value is a []any for OpIn and OpNotIn, a [2]any for OpBetween and ignored
// for the null checks.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Order sorts on one field.
type Order struct {
	Field string
	Desc  bool
}

// Page is a result window. Build it with Offset or PageNumber.
type Page struct {
	Offset int
	Limit  int
}

// Query is a declarative read. Every part is optional: no filters means every
// row, no sort means identity order, a nil page means no window. Filters are
// combined with AND.
type Query struct {
	Filters []Condition
	Sort    []Order
	Page    *Page
}

// Where starts a query with the given filters.
func Where(conds ...Condition) Query {
	return Query{Filters: conds}
}

// And appends filters.
func (q Query) And(conds ...Condition) Query {
	q.Filters = append(append([]Condition(nil), q.Filters...), conds...)
	return q
}

// OrderBy appends sort keys.
func (q Query) OrderBy(orders ...Order) Query {
	q.Sort = append(append([]Order(nil), q.Sort...), orders...)
	return q
}

// Window sets the page window.
func (q Query) Window(p Page) Query {
	q.Page = &p
	return q
}

// Offset returns an offset/limit window.
func Offset(offset, limit int) Page {
	return Page{Offset: max(offset, 0), Limit: limit}
}

// PageNumber returns the window for a 1-based page of the given size.
// Page numbers below one select the first page.
func PageNumber(number, size int) Page {
	if number < 1 {
		number = 1
	}

	return Page{Offset: (number - 1) * size, Limit: size}
}

// Eq matches field = value.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// Ne matches field <> value.
func Ne(field string, value any) Condition {
	return Condition{Field: field, Op: OpNe, Value: value}
}

// Gt matches field > value.
func Gt(field string, value any) Condition {
	return Condition{Field: field, Op: OpGt, Value: value}
}

// Ge matches field >= value.
func Ge(field string, value any) Condition {
	return Condition{Field: field, Op: OpGe, Value: value}
}

// Lt matches field < value.
func Lt(field string, value any) Condition {
	return Condition{Field: field, Op: OpLt, Value: value}
}

// Le matches field <= value.
func Le(field string, value any) Condition {
	return Condition{Field: field, Op: OpLe, Value: value}
}

// In matches any of values.
func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Value: values}
}

// NotIn matches none of values.
func NotIn(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpNotIn, Value: values}
}

// Between matches the inclusive range [from, to].
func Between(field string, from, to any) Condition {
	return Condition{Field: field, Op: OpBetween, Value: [2]any{from, to}}
}

// Like matches a raw LIKE pattern.
func Like(field, pattern string) Condition {
	return Condition{Field: field, Op: OpLike, Value: pattern}
}

// Contains matches a substring.
func Contains(field, s string) Condition {
	return Condition{Field: field, Op: OpContains, Value: s}
}

// Prefix matches a leading substring.
func Prefix(field, s string) Condition {
	return Condition{Field: field, Op: OpPrefix, Value: s}
}

// IsNull matches missing values.
func IsNull(field string) Condition {
	return Condition{Field: field, Op: OpIsNull}
}

// NotNull matches present values.
func NotNull(field string) Condition {
	return Condition{Field: field, Op: OpNotNull}
}

// Asc sorts ascending.
func Asc(field string) Order {
	return Order{Field: field}
}

// Desc sorts descending.
func Desc(field string) Order {
	return Order{Field: field, Desc: true}
}

// ParseSort reads a comma separated field list where a leading "-" sorts
// descending and an optional "+" ascending. Blank entries are skipped.
func ParseSort(s string) []Order {
	var orders []Order

	for field := range strings.SplitSeq(s, ",") {
		field = strings.TrimSpace(field)

		switch {
		case field == "" || field == "-" || field == "+":
		case strings.HasPrefix(field, "-"):
			orders = append(orders, Desc(field[1:]))
		default:
			orders = append(orders, Asc(strings.TrimPrefix(field, "+")))
		}
	}

	return orders
}
