package sqlfetch

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"reportgen/internal/report"
	"reportgen/internal/schema"
	"reportgen/internal/sqltype"
	"reportgen/internal/sqlutil"
)

// ErrUnknownPath is returned when a column path does not map to a column.
var ErrUnknownPath = errors.New("path does not resolve to a column")

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []any
	// Categories decode each selected value, in select order.
	Categories []sqltype.Category
}

// rootAlias is the alias of the report's root table.
var rootAlias = sqlutil.JoinAlias(nil)

// selectBuilder collects select expressions and the LEFT JOINs they need.
// Each relation path is joined once no matter how many columns use it.
type selectBuilder struct {
	catalog *schema.Catalog
	root    *schema.Model
	joins   []string
	joined  map[string]struct{}
}

func newSelectBuilder(catalog *schema.Catalog, root *schema.Model) *selectBuilder {
	return &selectBuilder{
		catalog: catalog,
		root:    root,
		joined:  make(map[string]struct{}),
	}
}

// column resolves path to a qualified column expression. A to-many relation
// as the terminal segment selects the related primary key.
func (b *selectBuilder) column(path string) (string, sqltype.Category, error) {
	segments := schema.SplitPath(path)
	if len(segments) == 0 {
		return "", 0, fmt.Errorf("%w: empty path", ErrUnknownPath)
	}
	model := b.root
	alias := rootAlias
	var walked []string
	for i, seg := range segments {
		last := i == len(segments)-1
		rel, isRel := model.Relation(seg)
		if last && (!isRel || rel.Kind != schema.FieldToMany) {
			col, ok := model.Column(seg)
			if !ok {
				return "", 0, fmt.Errorf("%w: %s on %s", ErrUnknownPath, path, model.Name())
			}
			return sqlutil.QualifiedColumn(alias, col), model.Category(seg), nil
		}
		if !isRel {
			return "", 0, fmt.Errorf("%w: %s is not a relation of %s", ErrUnknownPath, seg, model.Name())
		}
		target, ok := b.catalog.Model(rel.Target)
		if !ok {
			return "", 0, fmt.Errorf("%w: relation %s has no model", ErrUnknownPath, seg)
		}
		walked = append(walked, seg)
		next := sqlutil.JoinAlias(walked)
		b.join(target, next, alias, rel)
		model, alias = target, next
	}
	return sqlutil.QualifiedColumn(alias, model.PrimaryKeyColumn()), model.Category(schema.IdentityField), nil
}

func (b *selectBuilder) join(target *schema.Model, alias, parentAlias string, rel schema.Relation) {
	if _, ok := b.joined[alias]; ok {
		return
	}
	b.joined[alias] = struct{}{}
	b.joins = append(b.joins, fmt.Sprintf("%s AS %s ON %s = %s",
		sqlutil.QuoteIdentifier(target.Table()),
		sqlutil.QuoteIdentifier(alias),
		sqlutil.QualifiedColumn(alias, rel.RemoteColumn),
		sqlutil.QualifiedColumn(parentAlias, rel.LocalColumn),
	))
}

func (b *selectBuilder) from() string {
	return sqlutil.QuoteIdentifier(b.root.Table()) + " AS " + sqlutil.QuoteIdentifier(rootAlias)
}

func (b *selectBuilder) apply(q sq.SelectBuilder) sq.SelectBuilder {
	q = q.From(b.from())
	for _, j := range b.joins {
		q = q.LeftJoin(j)
	}
	return q
}

// aggregateExpr wraps expr in the SQL reduction for agg and returns the category of its result.
func aggregateExpr(agg report.Aggregate, expr string, category sqltype.Category) (string, sqltype.Category) {
	fn := strings.ToUpper(agg.String())
	switch agg {
	case report.AggregateCount:
		return fmt.Sprintf("COUNT(%s)", expr), sqltype.CategoryInt
	case report.AggregateAvg, report.AggregateSum:
		return fmt.Sprintf("%s(%s)", fn, expr), sqltype.CategoryDecimal
	default:
		return fmt.Sprintf("%s(%s)", fn, expr), category
	}
}

// PlanFlat builds the per-record query for cols. When any column is aggregated
// the remaining columns become the GROUP BY, so aggregates reduce per record.
func PlanFlat(catalog *schema.Catalog, root *schema.Model, cols []report.FlatColumn) (SQLQuery, error) {
	b := newSelectBuilder(catalog, root)
	var (
		exprs      []string
		groupBy    []string
		categories []sqltype.Category
		aggregated bool
	)
	for _, c := range cols {
		expr, category, err := b.column(c.Path)
		if err != nil {
			return SQLQuery{}, err
		}
		if c.Aggregate != report.AggregateNone {
			expr, category = aggregateExpr(c.Aggregate, expr, category)
			aggregated = true
		} else {
			groupBy = append(groupBy, expr)
		}
		exprs = append(exprs, expr)
		categories = append(categories, category)
	}
	pk := sqlutil.QualifiedColumn(rootAlias, root.PrimaryKeyColumn())

	q := b.apply(sq.Select(exprs...))
	if aggregated {
		q = q.GroupBy(groupBy...)
	}
	query, args, err := q.OrderBy(pk).PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args, Categories: categories}, nil
}

// PlanGroups builds one row per distinct value of group. Columns other than the
// group path and aggregates select NULL.
func PlanGroups(catalog *schema.Catalog, root *schema.Model, group string, cols []report.FlatColumn) (SQLQuery, error) {
	b := newSelectBuilder(catalog, root)
	groupExpr, _, err := b.column(group)
	if err != nil {
		return SQLQuery{}, err
	}
	var (
		exprs      []string
		categories []sqltype.Category
	)
	for _, c := range cols {
		expr, category, err := b.column(c.Path)
		if err != nil {
			return SQLQuery{}, err
		}
		switch {
		case c.Aggregate != report.AggregateNone:
			expr, category = aggregateExpr(c.Aggregate, expr, category)
		case c.Path != group:
			expr, category = "NULL", sqltype.CategoryText
		}
		exprs = append(exprs, expr)
		categories = append(categories, category)
	}

	query, args, err := b.apply(sq.Select(exprs...)).
		GroupBy(groupExpr).
		OrderBy(groupExpr).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args, Categories: categories}, nil
}

// entityColumns lists the column-backed fields loaded for one entity: direct
// fields and the foreign keys of to-one relations.
func entityColumns(model *schema.Model) (fields, columns []string) {
	for _, f := range model.Fields() {
		if f.Kind != schema.FieldDirect && f.Kind != schema.FieldToOne {
			continue
		}
		col, ok := model.Column(f.Name)
		if !ok {
			continue
		}
		fields = append(fields, f.Name)
		columns = append(columns, col)
	}
	return fields, columns
}

// PlanEntity builds a single-entity lookup on model filtered by where.
// The lowest primary key wins when several rows match.
func PlanEntity(model *schema.Model, where sq.Eq) (SQLQuery, error) {
	fields, columns := entityColumns(model)
	exprs := make([]string, 0, len(columns))
	categories := make([]sqltype.Category, 0, len(columns))
	for i, col := range columns {
		exprs = append(exprs, sqlutil.QuoteIdentifier(col))
		categories = append(categories, model.Category(fields[i]))
	}
	query, args, err := sq.Select(exprs...).
		From(sqlutil.QuoteIdentifier(model.Table())).
		Where(where).
		OrderBy(sqlutil.QuoteIdentifier(model.PrimaryKeyColumn())).
		Limit(1).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args, Categories: categories}, nil
}
