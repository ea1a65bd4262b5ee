// Package report turns column selections over an entity graph into
// materialized tables: it plans flat fetches, resolves per-row properties and
// custom values, filters, totals, sorts and formats the result.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reportgen/internal/logging"
	"reportgen/internal/schema"
)

// PreviewLimit caps the accepted rows of a preview run.
const PreviewLimit = 50

// PermissionDeniedMessage is returned when the root entity type is not readable.
const PermissionDeniedMessage = "Permission Denied"

// Option configures ToList.
type Option func(*options)

type options struct {
	filters  []PropertyFilter
	preview  bool
	logger   *slog.Logger
	registry schema.CustomFieldRegistry
}

// WithPropertyFilters drops rows excluded by any of filters.
func WithPropertyFilters(filters ...PropertyFilter) Option {
	return func(o *options) {
		o.filters = append(o.filters, filters...)
	}
}

// WithPreview stops after PreviewLimit accepted rows.
func WithPreview(preview bool) Option {
	return func(o *options) {
		o.preview = preview
	}
}

// WithLogger overrides the logger taken from the context.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCustomFields lets columns and filters address custom fields.
func WithCustomFields(registry schema.CustomFieldRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// ToList runs a report over src for user. Suppressed columns are described in
// Result.Message; fetch errors are returned as the data source reported them.
func ToList(ctx context.Context, src DataSource, columns []Column, user User, perms Permissions, opts ...Option) (Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.FromContext(ctx).Logger
	}

	root := src.Root()
	ctx, span := startSpan(ctx, "report.to_list",
		attribute.String("report.root", root.Name()),
		attribute.Int("report.columns", len(columns)),
		attribute.Bool("report.preview", o.preview),
	)
	defer span.End()

	logger := o.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("root", root.Name()),
	)
	start := time.Now()

	normalized, err := NormalizeColumns(ctx, root, columns, o.registry)
	if err != nil {
		recordSpanError(span, err)
		return Result{}, err
	}
	filters, err := normalizeFilters(ctx, root, o.filters, o.registry)
	if err != nil {
		recordSpanError(span, err)
		return Result{}, err
	}

	allowed := ComputeAllowed(ctx, root, normalized, user, perms)
	if !allowed.Root {
		logger.Info("report denied", slog.String("user", user.ID))
		span.SetAttributes(attribute.Bool("report.denied", true))
		return Result{Rows: []Row{}, Message: PermissionDeniedMessage}, nil
	}
	for _, name := range allowed.Denied {
		logger.Debug("column suppressed", slog.String("column", name), slog.String("user", user.ID))
	}

	plan, err := BuildPlan(ctx, root, normalized, allowed, filters)
	if err != nil {
		recordSpanError(span, err)
		return Result{}, err
	}

	e := &execution{src: src, plan: plan, filters: filters, preview: o.preview, logger: logger}
	var rows []Row
	if plan.Group != "" {
		rows, err = e.runGrouped(ctx)
	} else {
		rows, err = e.runFlat(ctx)
	}
	if err != nil {
		recordSpanError(span, err)
		return Result{}, err
	}

	sortRows(rows, plan.Columns, logger)
	formatRows(rows, plan.Columns)
	if e.totals != nil {
		rows = append(rows, totalsRows(plan.Columns, e.totals)...)
	}
	if rows == nil {
		rows = []Row{}
	}

	span.SetAttributes(
		attribute.Int("report.rows", len(rows)),
		attribute.Int("report.entity_fetches", e.fetches),
	)
	logger.Debug("report built",
		slog.Int("rows", len(rows)),
		slog.Int("columns", len(plan.Columns)),
		slog.Int("suppressed", len(allowed.Denied)),
		slog.Int("entity_fetches", e.fetches),
		slog.Duration("duration", time.Since(start)),
	)
	return Result{Rows: rows, Message: plan.Message, Columns: plan.Columns, DeniedColumns: len(allowed.Denied)}, nil
}

// normalizeFilters fills in filter kinds from the schema.
func normalizeFilters(ctx context.Context, root schema.EntityType, filters []PropertyFilter, registry schema.CustomFieldRegistry) ([]PropertyFilter, error) {
	out := make([]PropertyFilter, 0, len(filters))
	for _, f := range filters {
		if f.Kind == schema.FieldInvalid {
			_, field, err := schema.ResolveField(ctx, root, f.Path, registry)
			if err != nil {
				return nil, err
			}
			f.Kind = field.Kind
		}
		out = append(out, f)
	}
	return out, nil
}

// execution holds the per-call state of one report run.
type execution struct {
	src     DataSource
	plan    *Plan
	filters []PropertyFilter
	preview bool
	logger  *slog.Logger
	totals  *totals
	fetches int
}

func (e *execution) runFlat(ctx context.Context) ([]Row, error) {
	rs, err := e.src.FetchFlat(ctx, e.plan.Flat)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	e.totals = newTotals(e.plan.Totals)
	propertySlots := sortedSlots(e.plan.Properties)
	customSlots := sortedSlots(e.plan.Custom)

	var rows []Row
	for rs.Next() {
		raw, err := rs.Values()
		if err != nil {
			return nil, err
		}
		if len(raw) != len(e.plan.Flat) {
			return nil, fmt.Errorf("%w: got %d values, want %d", ErrRowShape, len(raw), len(e.plan.Flat))
		}

		row := e.newRow()
		for i, slot := range e.plan.FlatSlots {
			if slot >= 0 {
				row[slot] = raw[i]
			}
		}

		r := newRowResolver(e.src, e.plan, raw)
		drop, err := excluded(ctx, r, e.filters)
		if err != nil {
			return nil, err
		}
		if !drop {
			for _, slot := range propertySlots {
				if row[slot], err = r.resolve(ctx, e.plan.Properties[slot], schema.FieldProperty); err != nil {
					return nil, err
				}
			}
			for _, slot := range customSlots {
				if row[slot], err = r.resolve(ctx, e.plan.Custom[slot], schema.FieldCustom); err != nil {
					return nil, err
				}
			}
			e.totals.addRow(row)
			rows = append(rows, row)
		}
		if r.fetched() {
			e.fetches++
		}
		if e.preview && len(rows) >= PreviewLimit {
			break
		}
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *execution) runGrouped(ctx context.Context) ([]Row, error) {
	display := e.plan.DisplayFlat()
	slots := e.plan.FlatSlots[e.plan.headLen():]

	rs, err := e.src.FetchGroups(ctx, e.plan.Group, display)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	e.totals = newTotals(e.plan.Totals)
	var rows []Row
	for rs.Next() {
		raw, err := rs.Values()
		if err != nil {
			return nil, err
		}
		if len(raw) != len(display) {
			return nil, fmt.Errorf("%w: got %d values, want %d", ErrRowShape, len(raw), len(display))
		}
		row := e.newRow()
		for i, slot := range slots {
			row[slot] = raw[i]
		}
		e.totals.addRow(row)
		rows = append(rows, row)
		if e.preview && len(rows) >= PreviewLimit {
			break
		}
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// newRow returns an all-null row; the zero Value is Null.
func (e *execution) newRow() Row {
	return make(Row, len(e.plan.Columns))
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("reportgen/report")
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
