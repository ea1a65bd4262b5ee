package introspection

import (
	"context"
	"log/slog"
	"strings"

	"reportgen/internal/naming"
)

// buildRelationships creates bidirectional relationship metadata from foreign keys.
// Many-to-one relations are named after the FK column; one-to-many relations after the
// referencing table, prefixed with the FK column when that table references the target more than once.
func buildRelationships(ctx context.Context, schema *Schema, namer *naming.Namer) error {
	_, span := startSpan(ctx, "introspection.build_relationships")
	defer span.End()

	// Emit each composite warning once per schema build.
	warnedComposite := make(map[string]struct{})
	warnCompositeSkip := func(kind, tableName string, fk ForeignKeyConstraint) {
		key := strings.Join([]string{kind, tableName, fk.ConstraintName}, "|")
		if _, seen := warnedComposite[key]; seen {
			return
		}
		warnedComposite[key] = struct{}{}
		slog.Default().Warn("skipping composite relationship mapping",
			"kind", kind,
			"table", tableName,
			"constraint", fk.ConstraintName,
			"local_columns", fk.ColumnNames,
			"remote_table", fk.ReferencedTable,
			"remote_columns", fk.ReferencedColumns,
		)
	}

	// Count FKs per (source_table, target_table) pair to determine naming strategy.
	fkCount := make(map[string]map[string]int) // source → target → count
	for _, table := range schema.Tables {
		if table.IsView {
			continue
		}
		for _, fk := range ForeignKeyConstraints(table) {
			if fkCount[table.Name] == nil {
				fkCount[table.Name] = make(map[string]int)
			}
			fkCount[table.Name][fk.ReferencedTable]++
		}
	}

	// First pass: many-to-one relationships from FK columns.
	for i := range schema.Tables {
		table := &schema.Tables[i]
		if table.IsView {
			continue
		}
		for _, fk := range ForeignKeyConstraints(*table) {
			if fk.Composite() {
				warnCompositeSkip("many_to_one", table.Name, fk)
				continue
			}
			table.Relationships = append(table.Relationships, Relationship{
				IsManyToOne:  true,
				LocalColumn:  fk.ColumnNames[0],
				RemoteTable:  fk.ReferencedTable,
				RemoteColumn: fk.ReferencedColumns[0],
				FieldName:    namer.ManyToOneFieldName(fk.ColumnNames[0]),
			})
		}
	}

	// Second pass: one-to-many relationships (reverse direction).
	for i := range schema.Tables {
		table := &schema.Tables[i]
		if table.IsView {
			continue
		}
		for j := range schema.Tables {
			otherTable := &schema.Tables[j]
			if otherTable.IsView {
				continue
			}
			for _, fk := range ForeignKeyConstraints(*otherTable) {
				if fk.ReferencedTable != table.Name {
					continue
				}
				if fk.Composite() {
					warnCompositeSkip("one_to_many", otherTable.Name, fk)
					continue
				}
				isOnlyFK := fkCount[otherTable.Name][table.Name] == 1
				table.Relationships = append(table.Relationships, Relationship{
					IsOneToMany:  true,
					LocalColumn:  fk.ReferencedColumns[0],
					RemoteTable:  otherTable.Name,
					RemoteColumn: fk.ColumnNames[0],
					FieldName:    namer.OneToManyFieldName(otherTable.Name, fk.ColumnNames[0], isOnlyFK),
				})
			}
		}
	}

	return nil
}
