package report

import (
	"context"
	"fmt"

	"reportgen/internal/schema"
	"reportgen/internal/value"
)

type memType struct {
	name      string
	fields    []schema.Field
	relations map[string]*memType
}

func (m *memType) Name() string           { return m.name }
func (m *memType) PrimaryKey() string     { return "id" }
func (m *memType) Fields() []schema.Field { return m.fields }
func (m *memType) RelationTarget(field string) schema.EntityType {
	if t, ok := m.relations[field]; ok {
		return t
	}
	return nil
}

type memEntity struct {
	typ     *memType
	key     value.Value
	attrs   map[string]value.Value
	related map[string][]*memEntity
	custom  map[string]value.Value
}

func (e *memEntity) Type() schema.EntityType { return e.typ }
func (e *memEntity) Key() value.Value        { return e.key }

func (e *memEntity) Attr(_ context.Context, name string) (value.Value, error) {
	return e.attrs[name], nil
}

func (e *memEntity) Related(_ context.Context, relation string, key value.Value) (schema.Entity, error) {
	members := e.related[relation]
	if len(members) == 0 {
		return nil, nil
	}
	if key.IsNull() {
		return members[0], nil
	}
	for _, m := range members {
		if m.key.Equal(key) {
			return m, nil
		}
	}
	return nil, nil
}

func (e *memEntity) CustomValue(_ context.Context, name string) (value.Value, error) {
	return e.custom[name], nil
}

// memSource serves canned rows and records what the engine asked for.
type memSource struct {
	root     *memType
	flat     [][]value.Value
	groups   [][]value.Value
	entities map[string]*memEntity
	fetchErr error

	gotFlat    []FlatColumn
	gotGroup   string
	gotGrouped []FlatColumn
	byKeyCalls int
	rows       *SliceRows
}

func entityKey(typeName string, key value.Value) string {
	return fmt.Sprintf("%s/%s", typeName, key.String())
}

func (s *memSource) add(e *memEntity) {
	if s.entities == nil {
		s.entities = make(map[string]*memEntity)
	}
	s.entities[entityKey(e.typ.name, e.key)] = e
}

func (s *memSource) Root() schema.EntityType { return s.root }

func (s *memSource) FetchFlat(_ context.Context, cols []FlatColumn) (Rows, error) {
	s.gotFlat = cols
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	s.rows = NewSliceRows(s.flat)
	return s.rows, nil
}

func (s *memSource) FetchGroups(_ context.Context, group string, cols []FlatColumn) (Rows, error) {
	s.gotGroup = group
	s.gotGrouped = cols
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	s.rows = NewSliceRows(s.groups)
	return s.rows, nil
}

func (s *memSource) FetchByKey(_ context.Context, et schema.EntityType, key value.Value) (schema.Entity, error) {
	s.byKeyCalls++
	e, ok := s.entities[entityKey(et.Name(), key)]
	if !ok {
		return nil, nil
	}
	return e, nil
}

// hrTypes returns employee, department and skill types wired to each other.
func hrTypes() (employee, department, skill *memType) {
	skill = &memType{name: "skill", fields: []schema.Field{
		{Name: "id", Kind: schema.FieldDirect},
		{Name: "title", Kind: schema.FieldDirect, Label: "Title"},
		{Name: "level", Kind: schema.FieldProperty, Label: "Level"},
	}}
	department = &memType{
		name: "department",
		fields: []schema.Field{
			{Name: "id", Kind: schema.FieldDirect},
			{Name: "name", Kind: schema.FieldDirect, Label: "Department"},
			{Name: "employees", Kind: schema.FieldToMany, Target: "employee"},
			{Name: "headcount", Kind: schema.FieldProperty, Label: "Headcount"},
		},
		relations: map[string]*memType{},
	}
	employee = &memType{
		name: "employee",
		fields: []schema.Field{
			{Name: "id", Kind: schema.FieldDirect},
			{Name: "name", Kind: schema.FieldDirect, Label: "Name"},
			{Name: "salary", Kind: schema.FieldDirect, Label: "Salary"},
			{Name: "hired", Kind: schema.FieldDirect, Label: "Hired"},
			{Name: "status", Kind: schema.FieldDirect, Label: "Status", Choices: []schema.Choice{
				{Value: "a", Label: "Active"},
				{Value: "i", Label: "Inactive"},
			}},
			{Name: "dept", Kind: schema.FieldToOne, Target: "department", Label: "Dept"},
			{Name: "skills", Kind: schema.FieldToMany, Target: "skill", Label: "Skills"},
			{Name: "bonus", Kind: schema.FieldProperty, Label: "Bonus"},
		},
		relations: map[string]*memType{"skills": skill},
	}
	employee.relations["dept"] = department
	department.relations["employees"] = employee
	return employee, department, skill
}

type customFields map[string][]schema.Field

func (c customFields) CustomFields(_ context.Context, et schema.EntityType) ([]schema.Field, error) {
	return c[et.Name()], nil
}

// denyTypes refuses every capability on the named entity types.
func denyTypes(names ...string) Permissions {
	denied := make(map[string]bool, len(names))
	for _, n := range names {
		denied[n] = true
	}
	return PermissionsFunc(func(_ context.Context, _ User, et schema.EntityType, _ Capability) bool {
		return !denied[et.Name()]
	})
}

func vals(v ...value.Value) []value.Value {
	return v
}

// strs renders a row for comparison.
func strs(r Row) []string {
	out := make([]string, 0, len(r))
	for _, v := range r {
		out = append(out, v.String())
	}
	return out
}

func flatKeys(cols []FlatColumn) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.Key())
	}
	return out
}
