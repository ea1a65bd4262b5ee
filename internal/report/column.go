package report

import (
	"context"
	"fmt"
	"strings"

	"reportgen/internal/schema"
	"reportgen/internal/value"
)

// Aggregate is a column-level reduction applied by the data source.
type Aggregate int

const (
	AggregateNone Aggregate = iota
	AggregateAvg
	AggregateMax
	AggregateMin
	AggregateCount
	AggregateSum
)

var aggregateNames = map[Aggregate]string{
	AggregateNone:  "",
	AggregateAvg:   "Avg",
	AggregateMax:   "Max",
	AggregateMin:   "Min",
	AggregateCount: "Count",
	AggregateSum:   "Sum",
}

func (a Aggregate) String() string {
	return aggregateNames[a]
}

// Suffix returns the key suffix used for aggregated column keys, e.g. "__sum".
func (a Aggregate) Suffix() string {
	if a == AggregateNone {
		return ""
	}
	return schema.PathSeparator + strings.ToLower(a.String())
}

// ParseAggregate converts "avg", "Sum", etc. An empty string means no aggregate.
func ParseAggregate(s string) (Aggregate, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return AggregateNone, nil
	}
	for a, name := range aggregateNames {
		if a != AggregateNone && strings.EqualFold(name, trimmed) {
			return a, nil
		}
	}
	return AggregateNone, fmt.Errorf("unknown aggregate %q", s)
}

// UnmarshalText lets report definitions spell aggregates as strings.
func (a *Aggregate) UnmarshalText(text []byte) error {
	parsed, err := ParseAggregate(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Column is one displayed column of a report.
type Column struct {
	// Path is the full field path from the root, e.g. "dept__name".
	Path string
	// Kind is derived from the schema when left as FieldInvalid.
	Kind          schema.FieldKind
	Aggregate     Aggregate
	Total         bool
	Group         bool
	Choices       []schema.Choice
	DisplayFormat string
	// Sort is the sort priority; 0 leaves the column unsorted and higher values win.
	Sort        int
	SortReverse bool
	Position    int
	// Name is shown in headers and permission notes; defaults to the field label.
	Name string
}

// Prefix returns the relation part of the path ("dept" for "dept__name").
func (c Column) Prefix() string {
	prefix, _ := schema.SplitTerminal(c.Path)
	return prefix
}

// Field returns the terminal field name.
func (c Column) Field() string {
	_, field := schema.SplitTerminal(c.Path)
	return field
}

// Key identifies the column's value in fetched rows: the path plus any aggregate suffix.
func (c Column) Key() string {
	return c.Path + c.Aggregate.Suffix()
}

// DisplayName returns Name, falling back to the path.
func (c Column) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Path
}

// ColumnsFromPaths wraps raw path strings into minimal columns in the given order.
func ColumnsFromPaths(paths []string) []Column {
	columns := make([]Column, 0, len(paths))
	for i, p := range paths {
		columns = append(columns, Column{Path: p, Position: i})
	}
	return columns
}

// NormalizeColumns fills in kind, choices and names from the schema so the rest of
// the pipeline sees a single canonical column shape. Columns are returned in the
// input order; unresolvable columns keep Kind FieldInvalid.
func NormalizeColumns(ctx context.Context, root schema.EntityType, columns []Column, registry schema.CustomFieldRegistry) ([]Column, error) {
	out := make([]Column, 0, len(columns))
	for _, c := range columns {
		c.Path = strings.Join(schema.SplitPath(c.Path), schema.PathSeparator)
		_, field, err := schema.ResolveField(ctx, root, c.Path, registry)
		if err != nil {
			return nil, err
		}
		if c.Kind == schema.FieldInvalid {
			c.Kind = field.Kind
		}
		if c.Choices == nil && len(field.Choices) > 0 {
			c.Choices = field.Choices
		}
		if c.Name == "" {
			c.Name = field.Label
		}
		if c.Name == "" {
			c.Name = c.Path
		}
		out = append(out, c)
	}
	return out, nil
}

// PropertyFilter drops rows whose resolved value makes Exclude return true.
type PropertyFilter struct {
	// Path is the full field path from the root.
	Path string
	// Kind selects custom-value resolution for FieldCustom; anything else walks attributes.
	Kind    schema.FieldKind
	Exclude func(v value.Value) bool
}
