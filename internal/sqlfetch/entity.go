package sqlfetch

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"reportgen/internal/schema"
	"reportgen/internal/sqlutil"
	"reportgen/internal/value"
)

// entity is one loaded row of a model.
type entity struct {
	src     *Source
	model   *schema.Model
	key     value.Value
	attrs   map[string]value.Value
	columns map[string]value.Value
}

func newEntity(src *Source, m *schema.Model, vals []value.Value) *entity {
	fields, columns := entityColumns(m)
	e := &entity{
		src:     src,
		model:   m,
		attrs:   make(map[string]value.Value, len(fields)),
		columns: make(map[string]value.Value, len(columns)),
	}
	for i, f := range fields {
		e.attrs[f] = vals[i]
		e.columns[columns[i]] = vals[i]
	}
	e.key = e.columns[m.PrimaryKeyColumn()]
	return e
}

func (e *entity) Type() schema.EntityType { return e.model }
func (e *entity) Key() value.Value        { return e.key }

// Attr returns a column value or computes a property.
func (e *entity) Attr(ctx context.Context, name string) (value.Value, error) {
	if name == schema.IdentityField {
		return e.key, nil
	}
	if v, ok := e.attrs[name]; ok {
		return v, nil
	}
	if p, ok := e.model.Property(name); ok && p.Compute != nil {
		return p.Compute(ctx, e)
	}
	return value.Null(), nil
}

// Related loads the entity across relation. For to-many relations a null key
// picks the member with the lowest primary key.
func (e *entity) Related(ctx context.Context, relation string, key value.Value) (schema.Entity, error) {
	rel, ok := e.model.Relation(relation)
	if !ok {
		return nil, nil
	}
	target, ok := e.src.catalog.Model(rel.Target)
	if !ok {
		return nil, nil
	}
	local := e.columns[rel.LocalColumn]
	if local.IsNull() {
		return nil, nil
	}
	where := sq.Eq{sqlutil.QuoteIdentifier(rel.RemoteColumn): sqlArg(local)}
	if rel.Kind == schema.FieldToMany && !key.IsNull() {
		where[sqlutil.QuoteIdentifier(target.PrimaryKeyColumn())] = sqlArg(key)
	}
	return e.src.loadEntity(ctx, target, where)
}

// CustomValue reads a custom field value; without a registry every value is null.
func (e *entity) CustomValue(ctx context.Context, name string) (value.Value, error) {
	if e.src.custom == nil {
		return value.Null(), nil
	}
	return e.src.custom.Value(ctx, e.model, e.key, name)
}
