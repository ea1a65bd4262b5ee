// Package sqlfetch serves report data from a MySQL-compatible database.
// Flat and grouped fetches compile to one SELECT with LEFT JOINs along the
// column paths; entities are loaded lazily by key for property resolution.
package sqlfetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reportgen/internal/dbexec"
	"reportgen/internal/observability"
	"reportgen/internal/report"
	"reportgen/internal/schema"
	"reportgen/internal/sqltype"
	"reportgen/internal/sqlutil"
	"reportgen/internal/value"
)

// Source is a report.DataSource over one root model.
type Source struct {
	exec    dbexec.QueryExecutor
	catalog *schema.Catalog
	root    *schema.Model
	custom  *CustomFields
	logger  *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger used for query debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithCustomFields resolves custom values through cf.
func WithCustomFields(cf *CustomFields) Option {
	return func(s *Source) {
		s.custom = cf
	}
}

// New creates a Source rooted at the named model.
func New(exec dbexec.QueryExecutor, catalog *schema.Catalog, root string, opts ...Option) (*Source, error) {
	m, ok := catalog.Model(root)
	if !ok {
		return nil, fmt.Errorf("unknown report model %q", root)
	}
	s := &Source{exec: exec, catalog: catalog, root: m, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the root model.
func (s *Source) Root() schema.EntityType {
	return s.root
}

// FetchFlat runs one query returning a row per root record.
func (s *Source) FetchFlat(ctx context.Context, cols []report.FlatColumn) (report.Rows, error) {
	ctx, span := startSpan(ctx, "sqlfetch.fetch_flat",
		attribute.String("db.table", s.root.Table()),
		attribute.Int("report.flat_columns", len(cols)),
	)
	defer span.End()
	defer s.recordFetch(ctx, "flat", time.Now())

	q, err := PlanFlat(s.catalog, s.root, cols)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	rows, err := s.query(ctx, q)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to fetch report rows: %w", err)
	}
	return rows, nil
}

// FetchGroups runs one query returning a row per distinct group value.
func (s *Source) FetchGroups(ctx context.Context, group string, cols []report.FlatColumn) (report.Rows, error) {
	ctx, span := startSpan(ctx, "sqlfetch.fetch_groups",
		attribute.String("db.table", s.root.Table()),
		attribute.String("report.group", group),
	)
	defer span.End()
	defer s.recordFetch(ctx, "groups", time.Now())

	q, err := PlanGroups(s.catalog, s.root, group, cols)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	rows, err := s.query(ctx, q)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to fetch report groups: %w", err)
	}
	return rows, nil
}

// FetchByKey loads one entity of et by primary key. A missing row yields nil.
func (s *Source) FetchByKey(ctx context.Context, et schema.EntityType, key value.Value) (schema.Entity, error) {
	if key.IsNull() {
		return nil, nil
	}
	m, ok := s.catalog.Model(et.Name())
	if !ok {
		return nil, fmt.Errorf("unknown report model %q", et.Name())
	}
	return s.loadEntity(ctx, m, sq.Eq{sqlutil.QuoteIdentifier(m.PrimaryKeyColumn()): sqlArg(key)})
}

func (s *Source) loadEntity(ctx context.Context, m *schema.Model, where sq.Eq) (schema.Entity, error) {
	ctx, span := startSpan(ctx, "sqlfetch.load_entity", attribute.String("db.table", m.Table()))
	defer span.End()

	q, err := PlanEntity(m, where)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	rows, err := s.query(ctx, q)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to load %s: %w", m.Name(), err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to load %s: %w", m.Name(), err)
		}
		return nil, nil
	}
	vals, err := rows.Values()
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to load %s: %w", m.Name(), err)
	}
	return newEntity(s, m, vals), nil
}

// recordFetch times the query round trip; rows are decoded later by the caller.
func (s *Source) recordFetch(ctx context.Context, mode string, start time.Time) {
	if metrics := observability.ReportMetricsFromContext(ctx); metrics != nil {
		metrics.RecordFetch(ctx, s.root.Name(), mode, time.Since(start))
	}
}

func (s *Source) query(ctx context.Context, q SQLQuery) (*sqlRows, error) {
	s.logger.Debug("report query", slog.String("sql", q.SQL), slog.Int("args", len(q.Args)))
	rows, err := s.exec.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows, categories: q.Categories}, nil
}

// sqlRows decodes driver values into report values by column category.
type sqlRows struct {
	rows       dbexec.Rows
	categories []sqltype.Category
}

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Values() ([]value.Value, error) {
	raw := make([]any, len(r.categories))
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make([]value.Value, len(raw))
	for i, v := range raw {
		out[i] = value.FromSQL(v, r.categories[i])
	}
	return out, nil
}

func (r *sqlRows) Err() error   { return r.rows.Err() }
func (r *sqlRows) Close() error { return r.rows.Close() }

// sqlArg converts a report value into a driver argument.
func sqlArg(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindNumber:
		d, _ := v.AsNumber()
		if d.IsInteger() {
			return d.IntPart()
		}
		return d.String()
	case value.KindDate:
		t, _ := v.AsDate()
		return t
	default:
		return v.String()
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("reportgen/sqlfetch")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
