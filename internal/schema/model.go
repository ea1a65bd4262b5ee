package schema

import "reportgen/internal/sqltype"

// Relation holds the join metadata behind a relation field.
// In both directions the related rows satisfy remote.RemoteColumn = local.LocalColumn.
type Relation struct {
	Name         string
	Kind         FieldKind
	Target       string
	LocalColumn  string
	RemoteColumn string
}

// Model is a table-backed EntityType built by the Catalog.
type Model struct {
	name       string
	label      string
	table      string
	primaryKey string
	pkColumn   string
	fields     []Field
	byName     map[string]int
	columns    map[string]string
	relations  map[string]Relation
	properties map[string]Property
	catalog    *Catalog
}

func newModel(c *Catalog, name, label, table string) *Model {
	return &Model{
		name:       name,
		label:      label,
		table:      table,
		byName:     make(map[string]int),
		columns:    make(map[string]string),
		relations:  make(map[string]Relation),
		properties: make(map[string]Property),
		catalog:    c,
	}
}

// Name returns the model name used as the root of report paths.
func (m *Model) Name() string { return m.name }

// Label returns the singular human label.
func (m *Model) Label() string { return m.label }

// Table returns the backing table.
func (m *Model) Table() string { return m.table }

// PrimaryKey returns the field name of the primary key.
func (m *Model) PrimaryKey() string { return m.primaryKey }

// PrimaryKeyColumn returns the primary key column.
func (m *Model) PrimaryKeyColumn() string { return m.pkColumn }

// Fields returns the declared fields in declaration order.
func (m *Model) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// RelationTarget returns the related model for a relation field, or nil.
func (m *Model) RelationTarget(field string) EntityType {
	rel, ok := m.relations[field]
	if !ok || m.catalog == nil {
		return nil
	}
	target, ok := m.catalog.models[rel.Target]
	if !ok {
		return nil
	}
	return target
}

// Column returns the column backing a direct field or the FK column of a to-one relation.
// The identity field maps to the primary key column.
func (m *Model) Column(field string) (string, bool) {
	if field == IdentityField {
		return m.pkColumn, m.pkColumn != ""
	}
	if col, ok := m.columns[field]; ok {
		return col, true
	}
	if rel, ok := m.relations[field]; ok && rel.Kind == FieldToOne {
		return rel.LocalColumn, true
	}
	return "", false
}

// Category returns the value category of a column-backed field.
func (m *Model) Category(field string) sqltype.Category {
	if field == IdentityField {
		field = m.primaryKey
	}
	if idx, ok := m.byName[field]; ok {
		return m.fields[idx].DataType
	}
	return sqltype.CategoryText
}

// Relation returns join metadata for a relation field.
func (m *Model) Relation(name string) (Relation, bool) {
	rel, ok := m.relations[name]
	return rel, ok
}

// Property returns a derived attribute by name.
func (m *Model) Property(name string) (Property, bool) {
	p, ok := m.properties[name]
	return p, ok
}

// DirectFields returns the names of all column-backed fields in declaration order.
func (m *Model) DirectFields() []string {
	var out []string
	for _, f := range m.fields {
		if f.Kind == FieldDirect {
			out = append(out, f.Name)
		}
	}
	return out
}

func (m *Model) addField(f Field) {
	m.byName[f.Name] = len(m.fields)
	m.fields = append(m.fields, f)
}
