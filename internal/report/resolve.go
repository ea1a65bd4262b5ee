package report

import (
	"context"

	"reportgen/internal/schema"
	"reportgen/internal/value"
)

// entityCell loads the row's root entity on first access and keeps it for the
// rest of the row.
type entityCell struct {
	src    DataSource
	et     schema.EntityType
	key    value.Value
	loaded bool
	entity schema.Entity
	err    error
}

func (c *entityCell) get(ctx context.Context) (schema.Entity, error) {
	if !c.loaded {
		c.entity, c.err = c.src.FetchByKey(ctx, c.et, c.key)
		c.loaded = true
	}
	return c.entity, c.err
}

// rowResolver resolves property, custom and filter paths for one fetched row.
type rowResolver struct {
	cell    *entityCell
	subKeys map[string]value.Value
	subs    map[string]schema.Entity
}

func newRowResolver(src DataSource, plan *Plan, raw []value.Value) *rowResolver {
	r := &rowResolver{
		cell: &entityCell{src: src, et: src.Root(), key: raw[0]},
	}
	if len(plan.SubKeys) > 0 {
		r.subKeys = make(map[string]value.Value, len(plan.SubKeys))
		r.subs = make(map[string]schema.Entity, len(plan.SubKeys))
		for i, rel := range plan.SubKeys {
			r.subKeys[rel] = raw[1+i]
		}
	}
	return r
}

// fetched reports whether the root entity was ever loaded.
func (r *rowResolver) fetched() bool {
	return r.cell.loaded
}

// resolve returns the value at path. Absent entities along the way yield Null.
func (r *rowResolver) resolve(ctx context.Context, path string, kind schema.FieldKind) (value.Value, error) {
	segments := schema.SplitPath(path)
	if len(segments) == 0 {
		return value.Null(), nil
	}
	entity, err := r.cell.get(ctx)
	if err != nil {
		return value.Null(), err
	}
	if entity == nil {
		return value.Null(), nil
	}

	if key, ok := r.subKeys[segments[0]]; ok && len(segments) > 1 {
		if key.IsNull() {
			return value.Null(), nil
		}
		rel := segments[0]
		sub, seen := r.subs[rel]
		if !seen {
			sub, err = entity.Related(ctx, rel, key)
			if err != nil {
				return value.Null(), err
			}
			r.subs[rel] = sub
		}
		entity = sub
		segments = segments[1:]
	}
	return walk(ctx, entity, segments, kind)
}

// walk follows every segment but the last as a relation, then reads the
// terminal as an attribute or custom value.
func walk(ctx context.Context, entity schema.Entity, segments []string, kind schema.FieldKind) (value.Value, error) {
	last := len(segments) - 1
	for _, seg := range segments[:last] {
		if entity == nil {
			return value.Null(), nil
		}
		next, err := entity.Related(ctx, seg, value.Null())
		if err != nil {
			return value.Null(), err
		}
		entity = next
	}
	if entity == nil {
		return value.Null(), nil
	}
	if kind == schema.FieldCustom {
		return entity.CustomValue(ctx, segments[last])
	}
	return entity.Attr(ctx, segments[last])
}
