package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// instrumentationName is used for the OpenTelemetry tracer.
const instrumentationName = "github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/sqlstore"

// Repository is the SQL implementation of ports.Repository for one value object type.
// It runs every statement on its session's unit of work.
type Repository[T domain.Entity] struct {
	session *Session
	schema  Schema
	mapper  Mapper[T]
	entity  string
	tracer  trace.Tracer
}

var _ ports.Repository[*domain.User] = (*Repository[*domain.User])(nil)

// NewRepository binds a schema and mapper to a session.
func NewRepository[T domain.Entity](session *Session, schema Schema, mapper Mapper[T]) *Repository[T] {
	return &Repository[T]{
		session: session,
		schema:  schema,
		mapper:  mapper,
		entity:  mapper.New().EntityName(),
		tracer:  otel.Tracer(instrumentationName),
	}
}

// FromDomain implements ports.Repository. The value is validated first, then
// typed fields and additional properties that name a column are copied; the
// identity is included when set.
func (r *Repository[T]) FromDomain(v T) (ports.Record, error) {
	if err := domain.Validate(v); err != nil {
		return nil, err
	}

	rec := make(ports.Record)

	fields := r.mapper.ToRecord(v)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if err := r.mapField(rec, key, fields[key]); err != nil {
			return nil, err
		}
	}

	extra := v.Extra()
	for _, key := range slices.Sorted(maps.Keys(extra)) {
		if _, typed := fields[key]; typed {
			continue
		}

		if err := r.mapField(rec, key, extra[key]); err != nil {
			return nil, err
		}
	}

	if id, ok := v.Identity(); ok {
		rec[r.schema.idColumn()] = id
	}

	return rec, nil
}

func (r *Repository[T]) mapField(rec ports.Record, key string, value any) error {
	if r.schema.hasColumn(key) {
		rec[key] = value
		return nil
	}

	if r.schema.Strict {
		return domain.NewMappingError(r.entity, key, "no column in table "+r.schema.Table)
	}

	return nil
}

// ToDomain implements ports.Repository. The result is fully validated.
func (r *Repository[T]) ToDomain(rec ports.Record) (T, error) {
	var zero T

	v := r.mapper.New()
	fields := maps.Clone(rec)
	idCol := r.schema.idColumn()

	if raw, ok := fields[idCol]; ok {
		delete(fields, idCol)

		if raw != nil {
			id, err := domain.IdentityFromAny(raw)
			if err != nil {
				return zero, err
			}

			if err := domain.AssignIdentity(v, id); err != nil {
				return zero, err
			}
		}
	}

	unused, err := domain.DecodeRecord(fields, v)
	if err != nil {
		return zero, err
	}

	slices.Sort(unused)

	for _, key := range unused {
		if r.schema.Strict {
			return zero, domain.NewMappingError(r.entity, key, "no field on the domain value")
		}

		if b, ok := any(v).(interface{ SetExtra(string, any) }); ok {
			b.SetExtra(key, fields[key])
		}
	}

	if err := domain.Validate(v); err != nil {
		return zero, err
	}

	return v, nil
}

// FromMap converts an untyped map to a validated value and then to its record.
func (r *Repository[T]) FromMap(m map[string]any) (ports.Record, error) {
	rec := make(ports.Record, len(m))
	maps.Copy(rec, m)

	if raw, ok := rec[domain.IdentityKey]; ok {
		delete(rec, domain.IdentityKey)

		if raw != nil {
			rec[r.schema.idColumn()] = raw
		}
	}

	decoded, err := r.ToDomain(rec)
	if err != nil {
		return nil, err
	}

	return r.FromDomain(decoded)
}

// Get implements ports.Repository.
func (r *Repository[T]) Get(ctx context.Context, id int64) (out T, err error) {
	ctx, done := r.observe(ctx, "get", attribute.Int64("db.entity.id", id))
	defer func() { done(err) }()

	q, err := r.session.conn(ctx)
	if err != nil {
		return out, domain.NewPersistenceError(r.entity, "get", err)
	}

	return r.fetch(ctx, q, id)
}

// GetAll implements ports.Repository.
func (r *Repository[T]) GetAll(ctx context.Context) (out []T, err error) {
	ctx, done := r.observe(ctx, "get_all")
	defer func() { done(err) }()

	c := newCompiler(r.session.dialect, r.schema)

	return r.list(ctx, "get_all", c.all(), c.args)
}

// Query implements ports.Repository.
func (r *Repository[T]) Query(ctx context.Context, query ports.Query) (out []T, err error) {
	ctx, done := r.observe(ctx, "query", attribute.Int("db.query.filters", len(query.Filters)))
	defer func() { done(err) }()

	c := newCompiler(r.session.dialect, r.schema)

	stmt, err := c.query(query)
	if err != nil {
		return nil, err
	}

	return r.list(ctx, "query", stmt, c.args)
}

// Count implements ports.Repository.
func (r *Repository[T]) Count(ctx context.Context) (n int64, err error) {
	ctx, done := r.observe(ctx, "count")
	defer func() { done(err) }()

	q, err := r.session.conn(ctx)
	if err != nil {
		return 0, domain.NewPersistenceError(r.entity, "count", err)
	}

	c := newCompiler(r.session.dialect, r.schema)
	if err := q.QueryRowContext(ctx, c.count()).Scan(&n); err != nil {
		return 0, domain.NewPersistenceError(r.entity, "count", err)
	}

	return n, nil
}

// Insert implements ports.Repository.
func (r *Repository[T]) Insert(ctx context.Context, v T, opts ...ports.WriteOption) (out T, err error) {
	ctx, done := r.observe(ctx, "insert")
	defer func() { done(err) }()

	if _, ok := v.Identity(); ok {
		return out, domain.NewInvalidStateError(r.entity, "insert", "value already has an identity")
	}

	rec, err := r.FromDomain(v)
	if err != nil {
		return out, err
	}

	cols := r.writableColumns(rec)

	q, err := r.session.conn(ctx)
	if err != nil {
		return out, r.abort(ctx, "insert", err)
	}

	c := newCompiler(r.session.dialect, r.schema)
	stmt := c.insert(cols, rec)

	var id int64

	if r.session.dialect.SupportsReturning() {
		err = q.QueryRowContext(ctx, stmt, c.args...).Scan(&id)
	} else {
		var res sql.Result

		res, err = q.ExecContext(ctx, stmt, c.args...)
		if err == nil {
			id, err = res.LastInsertId()
		}
	}

	if err != nil {
		return out, r.abort(ctx, "insert", err)
	}

	out, err = r.fetch(ctx, q, id)
	if err != nil {
		return out, r.discard(ctx, err)
	}

	return r.finish(ctx, "insert", out, opts)
}

// Update implements ports.Repository.
func (r *Repository[T]) Update(ctx context.Context, v T, opts ...ports.WriteOption) (out T, err error) {
	ctx, done := r.observe(ctx, "update")
	defer func() { done(err) }()

	id, ok := v.Identity()
	if !ok {
		return out, domain.NewInvalidStateError(r.entity, "update", "value has no identity")
	}

	rec, err := r.FromDomain(v)
	if err != nil {
		return out, err
	}

	q, err := r.session.conn(ctx)
	if err != nil {
		return out, r.abort(ctx, "update", err)
	}

	if cols := r.writableColumns(rec); len(cols) > 0 {
		c := newCompiler(r.session.dialect, r.schema)
		if _, err := q.ExecContext(ctx, c.update(id, cols, rec), c.args...); err != nil {
			return out, r.abort(ctx, "update", err)
		}
	}

	// A missing row surfaces here as NotFound; the UPDATE matched nothing.
	out, err = r.fetch(ctx, q, id)
	if err != nil {
		return out, r.discard(ctx, err)
	}

	return r.finish(ctx, "update", out, opts)
}

// Delete implements ports.Repository. The returned value is the stored state
// immediately before removal.
func (r *Repository[T]) Delete(ctx context.Context, v T, opts ...ports.WriteOption) (out T, err error) {
	ctx, done := r.observe(ctx, "delete")
	defer func() { done(err) }()

	id, ok := v.Identity()
	if !ok {
		return out, domain.NewNotFoundError(r.entity, "")
	}

	q, err := r.session.conn(ctx)
	if err != nil {
		return out, r.abort(ctx, "delete", err)
	}

	before, err := r.fetch(ctx, q, id)
	if err != nil {
		return out, err
	}

	c := newCompiler(r.session.dialect, r.schema)
	if _, err := q.ExecContext(ctx, c.delete(id), c.args...); err != nil {
		return out, r.abort(ctx, "delete", err)
	}

	return r.finish(ctx, "delete", before, opts)
}

func (r *Repository[T]) writableColumns(rec ports.Record) []string {
	cols := make([]string, 0, len(rec))
	for _, col := range r.schema.Columns {
		if _, ok := rec[col]; ok && r.schema.writable(col) {
			cols = append(cols, col)
		}
	}

	return cols
}

func (r *Repository[T]) fetch(ctx context.Context, q querier, id int64) (T, error) {
	var zero T

	c := newCompiler(r.session.dialect, r.schema)

	rows, err := q.QueryContext(ctx, c.byID(id), c.args...)
	if err != nil {
		return zero, domain.NewPersistenceError(r.entity, "read", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows, r.schema.selectColumns())
	if err != nil {
		return zero, domain.NewPersistenceError(r.entity, "read", err)
	}

	if len(recs) == 0 {
		return zero, domain.NewNotFoundByID(r.entity, id)
	}

	return r.ToDomain(recs[0])
}

func (r *Repository[T]) list(ctx context.Context, op, stmt string, args []any) ([]T, error) {
	q, err := r.session.conn(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError(r.entity, op, err)
	}

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, domain.NewPersistenceError(r.entity, op, err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows, r.schema.selectColumns())
	if err != nil {
		return nil, domain.NewPersistenceError(r.entity, op, err)
	}

	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := r.ToDomain(rec)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

// finish commits when requested. A failed commit rolls back.
func (r *Repository[T]) finish(ctx context.Context, op string, out T, opts []ports.WriteOption) (T, error) {
	if !ports.ApplyWriteOptions(opts...).Commit {
		return out, nil
	}

	if err := r.session.Commit(ctx); err != nil {
		var zero T
		return zero, r.abort(ctx, op, err)
	}

	return out, nil
}

// abort rolls the unit of work back and reports the engine failure as a
// domain.PersistenceError. Unique violations also match domain.ErrConflict.
func (r *Repository[T]) abort(ctx context.Context, op string, cause error) error {
	if r.session.dialect.IsUniqueViolation(cause) {
		cause = fmt.Errorf("%w: %w", domain.NewConflictError(r.entity, "unique constraint violated"), cause)
	}

	perr := domain.NewPersistenceError(r.entity, op, cause)

	logging.FromContext(ctx).Warn("repository write failed, rolling back",
		slog.String("entity", r.entity),
		slog.String("operation", op),
		slog.String("error", cause.Error()),
	)

	if rbErr := r.session.Rollback(ctx); rbErr != nil {
		return errors.Join(perr, rbErr)
	}

	return perr
}

// discard handles a failed re-read after a write. NotFound means nothing was
// written, so the unit is left alone; anything else rolls back.
func (r *Repository[T]) discard(ctx context.Context, err error) error {
	if domain.IsNotFound(err) {
		return err
	}

	if rbErr := r.session.Rollback(ctx); rbErr != nil {
		return errors.Join(err, rbErr)
	}

	return err
}

func (r *Repository[T]) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "repository."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs,
			attribute.String("db.system", r.session.dialect.Name()),
			attribute.String("db.sql.table", r.schema.Table),
		)...),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
		r.session.metrics.ObserveRepository(r.entity, op, start, err)
	}
}
