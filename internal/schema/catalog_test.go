package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportgen/internal/introspection"
	"reportgen/internal/naming"
	"reportgen/internal/sqltype"
	"reportgen/internal/value"
)

func hrSchema(t *testing.T) *introspection.Schema {
	t.Helper()
	s := &introspection.Schema{
		Tables: []introspection.Table{
			{
				Name: "departments",
				Columns: []introspection.Column{
					{Name: "id", DataType: "int", IsPrimaryKey: true},
					{Name: "name", DataType: "varchar"},
					{Name: "status", DataType: "enum", ColumnType: "enum('open','on_hold')", EnumValues: []string{"open", "on_hold"}},
				},
			},
			{
				Name: "employees",
				Columns: []introspection.Column{
					{Name: "id", DataType: "int", IsPrimaryKey: true},
					{Name: "first_name", DataType: "varchar"},
					{Name: "last_name", DataType: "varchar"},
					{Name: "dept_id", DataType: "int"},
					{Name: "salary", DataType: "decimal", ColumnType: "decimal(10,2)"},
				},
				ForeignKeys: []introspection.ForeignKey{
					{ConstraintName: "fk_dept", ColumnName: "dept_id", ReferencedTable: "departments", ReferencedColumn: "id", OrdinalPosition: 1},
				},
			},
			{
				Name:    "audit_log",
				Columns: []introspection.Column{{Name: "message", DataType: "text"}},
			},
		},
	}
	require.NoError(t, introspection.RebuildRelationships(context.Background(), s, naming.Default()))
	return s
}

func TestNewCatalog(t *testing.T) {
	catalog, err := NewCatalog(hrSchema(t), naming.Default())
	require.NoError(t, err)

	require.Len(t, catalog.Models(), 2, "tables without a primary key are skipped")

	employees, ok := catalog.Model("employees")
	require.True(t, ok)
	assert.Equal(t, "Employee", employees.Label())
	assert.Equal(t, "id", employees.PrimaryKey())
	assert.Equal(t, []string{"id", "first_name", "last_name", "salary"}, employees.DirectFields())
	assert.Equal(t, sqltype.CategoryDecimal, employees.Category("salary"))

	dept, ok := FieldByName(employees, "dept")
	require.True(t, ok)
	assert.Equal(t, FieldToOne, dept.Kind)
	assert.Equal(t, "departments", dept.Target)
	assert.Equal(t, sqltype.CategoryInt, dept.DataType)

	col, ok := employees.Column("dept")
	require.True(t, ok)
	assert.Equal(t, "dept_id", col)
	col, ok = employees.Column(IdentityField)
	require.True(t, ok)
	assert.Equal(t, "id", col)

	departments, ok := catalog.Model("departments")
	require.True(t, ok)
	assert.Equal(t, departments, Resolve(employees, "dept__name"))
	assert.Equal(t, employees, Resolve(departments, "employees__salary"))

	rel, ok := departments.Relation("employees")
	require.True(t, ok)
	assert.Equal(t, Relation{Name: "employees", Kind: FieldToMany, Target: "employees", LocalColumn: "id", RemoteColumn: "dept_id"}, rel)

	status, ok := FieldByName(departments, "status")
	require.True(t, ok)
	assert.Equal(t, []Choice{{Value: "open", Label: "Open"}, {Value: "on_hold", Label: "On hold"}}, status.Choices)
}

func TestNewCatalog_Properties(t *testing.T) {
	catalog, err := NewCatalog(hrSchema(t), naming.Default(),
		WithPropertyDefinitions([]PropertyDefinition{
			{Model: "employees", Name: "full_name", Template: "{{.first_name}} {{.last_name}}"},
		}),
		WithProperty("employees", Property{
			Name: "is_rich",
			Compute: func(ctx context.Context, e Entity) (value.Value, error) {
				return value.Bool(true), nil
			},
		}),
	)
	require.NoError(t, err)

	employees, _ := catalog.Model("employees")
	full, ok := employees.Property("full_name")
	require.True(t, ok)
	assert.Equal(t, "Full name", full.Label)

	c, err := Classify(context.Background(), employees, nil)
	require.NoError(t, err)
	require.Len(t, c.Properties, 2)
	assert.Equal(t, "full_name", c.Properties[0].Name)
	assert.Equal(t, "is_rich", c.Properties[1].Name)

	_, err = NewCatalog(hrSchema(t), naming.Default(),
		WithPropertyDefinitions([]PropertyDefinition{{Model: "ghosts", Name: "x", Template: "x"}}))
	assert.Error(t, err)

	_, err = NewCatalog(hrSchema(t), naming.Default(),
		WithPropertyDefinitions([]PropertyDefinition{{Model: "employees", Name: "x", Template: "{{"}}))
	assert.Error(t, err)
}

func TestCatalog_Fields(t *testing.T) {
	registry := stubRegistry{fields: map[string][]Field{"departments": {{Name: "cost_center"}}}}
	catalog, err := NewCatalog(hrSchema(t), naming.Default(), WithCustomFieldRegistry(registry))
	require.NoError(t, err)
	employees, _ := catalog.Model("employees")

	root, err := catalog.Fields(context.Background(), employees, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "employees", root.Model)
	assert.Len(t, root.Fields, 4)
	assert.Equal(t, "", root.Path)

	related, err := catalog.Fields(context.Background(), employees, "dept", "", "")
	require.NoError(t, err)
	assert.Equal(t, "departments", related.Model)
	assert.Equal(t, "dept__", related.Path)
	assert.Equal(t, "dept", related.PathVerbose)
	require.Len(t, related.CustomFields, 1)
	assert.Equal(t, "cost_center", related.CustomFields[0].Name)

	departments, _ := catalog.Model("departments")
	nested, err := catalog.Fields(context.Background(), departments, "employees", "dept__", "dept")
	require.NoError(t, err)
	assert.Equal(t, "dept__employees__", nested.Path)
	assert.Equal(t, "dept::employees", nested.PathVerbose)

	_, err = catalog.Fields(context.Background(), employees, "salary", "", "")
	assert.Error(t, err)
}

func TestCatalog_RelatedFields(t *testing.T) {
	catalog, err := NewCatalog(hrSchema(t), naming.Default())
	require.NoError(t, err)
	employees, _ := catalog.Model("employees")

	set, err := catalog.RelatedFields(employees, "", "", "")
	require.NoError(t, err)
	require.Len(t, set.Relations, 1)
	assert.Equal(t, "dept", set.Relations[0].Name)

	set, err = catalog.RelatedFields(employees, "dept", "", "")
	require.NoError(t, err)
	assert.Equal(t, "departments", set.Model)
	assert.Equal(t, "dept__", set.Path)
	require.Len(t, set.Relations, 1)
	assert.Equal(t, "employees", set.Relations[0].Name)
}

type mapEntity struct {
	et    EntityType
	attrs map[string]value.Value
}

func (m mapEntity) Type() EntityType { return m.et }
func (m mapEntity) Key() value.Value { return m.attrs["id"] }
func (m mapEntity) Attr(_ context.Context, name string) (value.Value, error) {
	return m.attrs[name], nil
}
func (m mapEntity) Related(context.Context, string, value.Value) (Entity, error) { return nil, nil }
func (m mapEntity) CustomValue(context.Context, string) (value.Value, error) {
	return value.Null(), nil
}

func TestTemplateProperty(t *testing.T) {
	catalog, err := NewCatalog(hrSchema(t), naming.Default())
	require.NoError(t, err)
	employees, _ := catalog.Model("employees")

	p, err := TemplateProperty("full_name", "Full name", "{{.first_name}} {{.last_name}}{{.nope}}")
	require.NoError(t, err)

	got, err := p.Compute(context.Background(), mapEntity{et: employees, attrs: map[string]value.Value{
		"first_name": value.Text("Ada"),
		"last_name":  value.Text("Lovelace"),
	}})
	require.NoError(t, err)
	assert.True(t, value.Text("Ada Lovelace").Equal(got))
}
