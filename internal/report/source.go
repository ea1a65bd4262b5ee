package report

import (
	"context"

	"reportgen/internal/schema"
	"reportgen/internal/value"
)

// DataSource is the storage collaborator of the engine.
type DataSource interface {
	// Root is the entity type every column path starts from.
	Root() schema.EntityType
	// FetchFlat returns one row per root record with values in cols order.
	// Aggregated columns are reduced per root record.
	FetchFlat(ctx context.Context, cols []FlatColumn) (Rows, error)
	// FetchGroups returns one row per distinct value of group with values in cols order.
	// Aggregated columns are reduced per bucket.
	FetchGroups(ctx context.Context, group string, cols []FlatColumn) (Rows, error)
	// FetchByKey loads one entity. A missing entity is reported as nil without error.
	FetchByKey(ctx context.Context, et schema.EntityType, key value.Value) (schema.Entity, error)
}

// Rows iterates fetched rows in the style of database/sql.
type Rows interface {
	Next() bool
	Values() ([]value.Value, error)
	Err() error
	Close() error
}

// Row is one result row aligned with the kept columns.
type Row []value.Value

// Result is the output of ToList.
type Result struct {
	Rows    []Row
	Message string
	// Columns are the kept columns in row order.
	Columns []Column
	// DeniedColumns counts columns suppressed by permission checks.
	DeniedColumns int
}

// SliceRows serves rows from memory. It backs tests and small in-memory sources.
type SliceRows struct {
	data [][]value.Value
	idx  int
}

// NewSliceRows wraps data as Rows.
func NewSliceRows(data [][]value.Value) *SliceRows {
	return &SliceRows{data: data, idx: -1}
}

func (r *SliceRows) Next() bool {
	if r.idx+1 >= len(r.data) {
		r.idx = len(r.data)
		return false
	}
	r.idx++
	return true
}

func (r *SliceRows) Values() ([]value.Value, error) {
	if r.idx < 0 || r.idx >= len(r.data) {
		return nil, ErrRowShape
	}
	return r.data[r.idx], nil
}

func (r *SliceRows) Err() error   { return nil }
func (r *SliceRows) Close() error { return nil }

// Consumed reports how many rows have been read.
func (r *SliceRows) Consumed() int {
	if r.idx < 0 {
		return 0
	}
	if r.idx >= len(r.data) {
		return len(r.data)
	}
	return r.idx + 1
}
