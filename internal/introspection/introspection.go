// Package introspection discovers database schema metadata from information_schema.
// It extracts tables, columns, primary keys, foreign keys, and relationships for use in the report catalog.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reportgen/internal/naming"
	"reportgen/internal/sqltype"
)

// Column represents a database column
type Column struct {
	Name          string
	DataType      string
	ColumnType    string
	IsNullable    bool
	IsPrimaryKey  bool
	HasDefault    bool
	ColumnDefault string
	// EnumValues holds the allowed values of ENUM and SET columns; they become choice sets.
	EnumValues []string
	Comment    string
	// FieldName is the resolved report field name for this column.
	FieldName string
}

// Category returns the value category used to decode and aggregate the column.
func (c Column) Category() sqltype.Category {
	if c.ColumnType != "" {
		return sqltype.Map(c.ColumnType)
	}
	return sqltype.Map(c.DataType)
}

// ForeignKey represents a foreign key constraint on a column
type ForeignKey struct {
	ColumnName       string // e.g., "dept_id"
	ReferencedTable  string // e.g., "departments"
	ReferencedColumn string // e.g., "id"
	ConstraintName   string // e.g., "employees_ibfk_1"
	OrdinalPosition  int    // Column position within the FK constraint
}

// Relationship represents either direction of a FK relationship
type Relationship struct {
	IsManyToOne bool
	IsOneToMany bool
	// For many-to-one: the FK column; for one-to-many: the referenced key column on the local table.
	LocalColumn string
	RemoteTable string
	// For many-to-one: the referenced column; for one-to-many: the FK column in the remote table.
	RemoteColumn string
	FieldName    string // e.g., "dept" or "employees"
}

// Table represents a database table
type Table struct {
	Name          string
	IsView        bool
	Comment       string
	Columns       []Column
	ForeignKeys   []ForeignKey
	Relationships []Relationship
}

// Schema represents the introspected database schema
type Schema struct {
	Tables []Table
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const (
	tablesQuery = `
		SELECT TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
			AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME
	`
	columnsQuery = `
		SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, COLUMN_COMMENT, IS_NULLABLE, COLUMN_DEFAULT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, ORDINAL_POSITION
	`
	keysQuery = `
		SELECT TABLE_NAME, CONSTRAINT_NAME, COLUMN_NAME, ORDINAL_POSITION,
			REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND (CONSTRAINT_NAME = 'PRIMARY' OR REFERENCED_TABLE_NAME IS NOT NULL)
		ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION
	`
)

// IntrospectDatabase reads tables, columns and keys of databaseName with one
// query each and derives relationships with namer (nil uses the defaults).
func IntrospectDatabase(ctx context.Context, db Queryer, databaseName string, namer *naming.Namer) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	schema := &Schema{Tables: []Table{}}
	index := make(map[string]int)

	err := eachRow(ctx, db, "introspection.get_tables", tablesQuery, databaseName, func(rows *sql.Rows) error {
		var name, kind string
		var comment sql.NullString
		if err := rows.Scan(&name, &kind, &comment); err != nil {
			return err
		}
		index[name] = len(schema.Tables)
		schema.Tables = append(schema.Tables, Table{
			Name:    name,
			IsView:  strings.EqualFold(kind, "VIEW"),
			Comment: strings.TrimSpace(comment.String),
		})
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	err = eachRow(ctx, db, "introspection.get_columns", columnsQuery, databaseName, func(rows *sql.Rows) error {
		var tableName string
		col, err := scanColumn(rows, &tableName)
		if err != nil {
			return err
		}
		if i, ok := index[tableName]; ok {
			schema.Tables[i].Columns = append(schema.Tables[i].Columns, col)
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	err = eachRow(ctx, db, "introspection.get_keys", keysQuery, databaseName, func(rows *sql.Rows) error {
		var tableName, constraint, column string
		var ordinal int
		var refTable, refColumn sql.NullString
		if err := rows.Scan(&tableName, &constraint, &column, &ordinal, &refTable, &refColumn); err != nil {
			return err
		}
		i, ok := index[tableName]
		if !ok || schema.Tables[i].IsView {
			return nil
		}
		table := &schema.Tables[i]
		if constraint == "PRIMARY" {
			markPrimaryKey(table, column)
			return nil
		}
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			ColumnName:       column,
			ReferencedTable:  refTable.String,
			ReferencedColumn: refColumn.String,
			ConstraintName:   constraint,
			OrdinalPosition:  ordinal,
		})
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get keys: %w", err)
	}

	if namer == nil {
		namer = naming.Default()
	}
	if err := buildRelationships(ctx, schema, namer); err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to build relationships: %w", err)
	}

	span.SetAttributes(attribute.Int("db.table_count", len(schema.Tables)))
	return schema, nil
}

// RebuildRelationships clears and rebuilds relationship metadata using a custom namer.
func RebuildRelationships(ctx context.Context, schema *Schema, namer *naming.Namer) error {
	if schema == nil {
		return nil
	}
	for i := range schema.Tables {
		schema.Tables[i].Relationships = nil
	}
	return buildRelationships(ctx, schema, namer)
}

func eachRow(ctx context.Context, db Queryer, spanName, query, databaseName string, scan func(*sql.Rows) error) error {
	ctx, span := startSpan(ctx, spanName, attribute.String("db.name", databaseName))
	defer span.End()

	rows, err := db.QueryContext(ctx, query, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	n := 0
	for rows.Next() {
		if err := scan(rows); err != nil {
			recordSpanError(span, err)
			return err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return err
	}
	span.SetAttributes(attribute.Int("db.row_count", n))
	return nil
}

func scanColumn(rows *sql.Rows, tableName *string) (Column, error) {
	var col Column
	var isNullable string
	var comment, columnDefault sql.NullString
	if err := rows.Scan(tableName, &col.Name, &col.DataType, &col.ColumnType, &comment, &isNullable, &columnDefault); err != nil {
		return col, err
	}
	col.Comment = strings.TrimSpace(comment.String)
	col.IsNullable = strings.EqualFold(isNullable, "YES")
	col.ColumnDefault, col.HasDefault = columnDefault.String, columnDefault.Valid

	var parse func(string) ([]string, error)
	switch strings.ToLower(col.DataType) {
	case "enum":
		parse = parseEnumValues
	case "set":
		parse = parseSetValues
	}
	if parse != nil {
		values, err := parse(col.ColumnType)
		if err != nil {
			slog.Default().Warn("ignoring unparseable choice list",
				slog.String("table", *tableName),
				slog.String("column", col.Name),
				slog.String("type", col.ColumnType),
				slog.String("error", err.Error()))
		} else {
			col.EnumValues = values
		}
	}
	return col, nil
}

func markPrimaryKey(table *Table, column string) {
	for i := range table.Columns {
		if table.Columns[i].Name == column {
			table.Columns[i].IsPrimaryKey = true
			return
		}
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("reportgen/introspection")
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
