package introspection

import (
	"cmp"
	"slices"
	"strconv"
)

// PrimaryKeyColumns returns the primary key columns of table in column order.
func PrimaryKeyColumns(table Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// ForeignKeyConstraint is one FK constraint with its column pairs in ordinal order.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// Composite reports whether the constraint spans more than one column.
func (c ForeignKeyConstraint) Composite() bool {
	return len(c.ColumnNames) != 1 || len(c.ReferencedColumns) != 1
}

// ForeignKeyConstraints folds the per-column KEY_COLUMN_USAGE rows of table
// into constraints sorted by name. Rows without a constraint name never merge.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	type keyed struct {
		group string
		seq   int
		fk    ForeignKey
	}
	rows := make([]keyed, len(table.ForeignKeys))
	for i, fk := range table.ForeignKeys {
		group := fk.ConstraintName
		if group == "" {
			group = "\x00" + strconv.Itoa(i)
		}
		rows[i] = keyed{group: group, seq: i, fk: fk}
	}

	// Missing ordinal positions sort after known ones.
	ordinal := func(fk ForeignKey) int {
		if fk.OrdinalPosition <= 0 {
			return int(^uint(0) >> 1)
		}
		return fk.OrdinalPosition
	}
	slices.SortStableFunc(rows, func(a, b keyed) int {
		return cmp.Or(
			cmp.Compare(a.group, b.group),
			cmp.Compare(ordinal(a.fk), ordinal(b.fk)),
			cmp.Compare(a.fk.ColumnName, b.fk.ColumnName),
			cmp.Compare(a.seq, b.seq),
		)
	})

	var out []ForeignKeyConstraint
	last := ""
	for _, r := range rows {
		if len(out) == 0 || r.group != last {
			out = append(out, ForeignKeyConstraint{
				ConstraintName:  r.fk.ConstraintName,
				ReferencedTable: r.fk.ReferencedTable,
			})
			last = r.group
		}
		c := &out[len(out)-1]
		c.ColumnNames = append(c.ColumnNames, r.fk.ColumnName)
		c.ReferencedColumns = append(c.ReferencedColumns, r.fk.ReferencedColumn)
	}
	return out
}
