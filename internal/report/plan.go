package report

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"reportgen/internal/schema"
)

// FlatColumn is one value the data source fetches per record or per group bucket.
type FlatColumn struct {
	Path      string
	Aggregate Aggregate
}

// Key returns the path plus aggregate suffix, e.g. "salary__sum".
func (f FlatColumn) Key() string {
	return f.Path + f.Aggregate.Suffix()
}

// Plan is the execution plan for one report run.
type Plan struct {
	// Columns are the kept columns with dense positions 0..n-1.
	Columns []Column
	// Flat lists every fetched value: the identity key, then sub-keys, then display columns.
	Flat []FlatColumn
	// FlatPaths holds the key of each Flat entry.
	FlatPaths []string
	// FlatSlots maps each Flat entry to its row slot; identity and sub-keys map to -1.
	FlatSlots []int
	// Properties and Custom map row slots to the paths resolved per entity.
	Properties map[int]string
	Custom     map[int]string
	// SubKeys lists to-many relations whose related key is fetched right after the identity key.
	SubKeys []string
	// Group is the grouped path, or empty.
	Group string
	// Totals holds the slots of columns that accumulate totals.
	Totals map[int]struct{}
	// Message carries permission notes for suppressed columns.
	Message string
}

// identityPath is the flat path of the root entity's key.
var identityPath = schema.IdentityField

// BuildPlan drops invalid and denied columns, renumbers the rest densely by
// Position and splits them into flat, property and custom columns. Only
// property and custom columns fan out over to-many sub-keys; filters never add
// rows. Grouped plans reject filters.
func BuildPlan(ctx context.Context, root schema.EntityType, columns []Column, allowed AllowedColumns, filters []PropertyFilter) (*Plan, error) {
	_, span := startSpan(ctx, "report.build_plan",
		attribute.String("report.root", root.Name()),
		attribute.Int("report.filters", len(filters)),
	)
	defer span.End()

	kept := make([]Column, 0, len(columns))
	for i, c := range columns {
		if c.Kind == schema.FieldInvalid {
			continue
		}
		if !allowed.Allows(i) {
			continue
		}
		kept = append(kept, c)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Position < kept[j].Position })
	for i := range kept {
		kept[i].Position = i
	}

	plan := &Plan{
		Columns:    kept,
		Properties: make(map[int]string),
		Custom:     make(map[int]string),
		Totals:     make(map[int]struct{}),
		Message:    denialMessage(allowed.Denied),
	}

	var display []FlatColumn
	var displaySlots []int
	for _, c := range kept {
		if c.Group {
			if plan.Group != "" {
				err := &ConfigError{Column: c.DisplayName(), Err: ErrMultipleGroups}
				recordSpanError(span, err)
				return nil, err
			}
			plan.Group = c.Path
		}
		switch c.Kind {
		case schema.FieldProperty:
			plan.Properties[c.Position] = c.Path
		case schema.FieldCustom:
			plan.Custom[c.Position] = c.Path
		default:
			display = append(display, FlatColumn{Path: c.Path, Aggregate: c.Aggregate})
			displaySlots = append(displaySlots, c.Position)
		}
		if c.Total {
			plan.Totals[c.Position] = struct{}{}
		}
	}
	if plan.Group != "" && (len(plan.Properties) > 0 || len(plan.Custom) > 0 || len(filters) > 0) {
		err := &ConfigError{Err: ErrUnsupportedGrouping}
		recordSpanError(span, err)
		return nil, err
	}

	seen := make(map[string]struct{})
	addSubKey := func(path string) {
		segments := schema.SplitPath(path)
		if len(segments) < 2 {
			return
		}
		rel := segments[0]
		if _, ok := seen[rel]; ok {
			return
		}
		f, ok := schema.FieldByName(root, rel)
		if !ok || f.Kind != schema.FieldToMany {
			return
		}
		seen[rel] = struct{}{}
		plan.SubKeys = append(plan.SubKeys, rel)
	}
	for _, slot := range sortedSlots(plan.Properties, plan.Custom) {
		if path, ok := plan.Properties[slot]; ok {
			addSubKey(path)
		} else {
			addSubKey(plan.Custom[slot])
		}
	}

	plan.Flat = append(plan.Flat, FlatColumn{Path: identityPath})
	plan.FlatSlots = append(plan.FlatSlots, -1)
	for _, rel := range plan.SubKeys {
		plan.Flat = append(plan.Flat, FlatColumn{Path: schema.JoinPath(rel, schema.IdentityField)})
		plan.FlatSlots = append(plan.FlatSlots, -1)
	}
	plan.Flat = append(plan.Flat, display...)
	plan.FlatSlots = append(plan.FlatSlots, displaySlots...)
	for _, f := range plan.Flat {
		plan.FlatPaths = append(plan.FlatPaths, f.Key())
	}
	return plan, nil
}

// headLen is the number of leading identity and sub-key entries in Flat.
func (p *Plan) headLen() int {
	return 1 + len(p.SubKeys)
}

// DisplayFlat returns the flat display columns, without identity and sub-keys.
func (p *Plan) DisplayFlat() []FlatColumn {
	return p.Flat[p.headLen():]
}

func denialMessage(denied []string) string {
	notes := make([]string, 0, len(denied))
	for _, name := range denied {
		notes = append(notes, "You don't have permission to "+name)
	}
	return strings.Join(notes, "; ")
}

// sortedSlots returns the keys of the given slot maps in ascending order.
func sortedSlots(maps ...map[int]string) []int {
	var slots []int
	for _, m := range maps {
		for slot := range m {
			slots = append(slots, slot)
		}
	}
	sort.Ints(slots)
	return slots
}
