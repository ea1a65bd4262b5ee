package sqlfetch

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"reportgen/internal/dbexec"
	"reportgen/internal/naming"
	"reportgen/internal/schema"
	"reportgen/internal/sqltype"
	"reportgen/internal/sqlutil"
	"reportgen/internal/value"
)

// CustomFieldTables names the two tables behind custom fields:
//
//	fields: id, model, name, label, data_type
//	values: field_id, object_id, value
type CustomFieldTables struct {
	Fields string `mapstructure:"fields_table"`
	Values string `mapstructure:"values_table"`
}

// DefaultCustomFieldTables returns the conventional table names.
func DefaultCustomFieldTables() CustomFieldTables {
	return CustomFieldTables{Fields: "custom_fields", Values: "custom_field_values"}
}

// CustomFields is a schema.CustomFieldRegistry backed by attribute-value tables.
type CustomFields struct {
	exec   dbexec.QueryExecutor
	tables CustomFieldTables
}

// NewCustomFields creates a registry; empty table names fall back to the defaults.
func NewCustomFields(exec dbexec.QueryExecutor, tables CustomFieldTables) *CustomFields {
	defaults := DefaultCustomFieldTables()
	if tables.Fields == "" {
		tables.Fields = defaults.Fields
	}
	if tables.Values == "" {
		tables.Values = defaults.Values
	}
	return &CustomFields{exec: exec, tables: tables}
}

// CustomFields lists the custom fields attached to et, ordered by name.
func (c *CustomFields) CustomFields(ctx context.Context, et schema.EntityType) ([]schema.Field, error) {
	query, args, err := sq.Select("name", "label", "data_type").
		From(sqlutil.QuoteIdentifier(c.tables.Fields)).
		Where(sq.Eq{"model": et.Name()}).
		OrderBy("name").
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom fields: %w", err)
	}
	defer rows.Close()

	var fields []schema.Field
	for rows.Next() {
		var name, label, dataType string
		if err := rows.Scan(&name, &label, &dataType); err != nil {
			return nil, fmt.Errorf("failed to scan custom field: %w", err)
		}
		if label == "" {
			label = naming.Default().Label(name)
		}
		fields = append(fields, schema.Field{
			Name:     name,
			Label:    label,
			Kind:     schema.FieldCustom,
			DataType: sqltype.Map(dataType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list custom fields: %w", err)
	}
	return fields, nil
}

// Value returns the custom value of one entity, or null when none is stored.
func (c *CustomFields) Value(ctx context.Context, et schema.EntityType, key value.Value, name string) (value.Value, error) {
	if key.IsNull() {
		return value.Null(), nil
	}
	query, args, err := sq.Select("v.value", "f.data_type").
		From(sqlutil.QuoteIdentifier(c.tables.Values) + " AS v").
		Join(sqlutil.QuoteIdentifier(c.tables.Fields) + " AS f ON f.id = v.field_id").
		Where(sq.Eq{"f.model": et.Name(), "f.name": name, "v.object_id": key.String()}).
		Limit(1).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return value.Null(), err
	}
	rows, err := c.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return value.Null(), fmt.Errorf("failed to read custom value %s: %w", name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return value.Null(), rows.Err()
	}
	var raw any
	var dataType string
	if err := rows.Scan(&raw, &dataType); err != nil {
		return value.Null(), fmt.Errorf("failed to scan custom value %s: %w", name, err)
	}
	return value.FromSQL(raw, sqltype.Map(dataType)), nil
}
