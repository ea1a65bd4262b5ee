// Package schema describes the entities a report can be built over and resolves
// relation paths such as "dept__manager__name" against them.
package schema

import (
	"context"
	"strings"

	"reportgen/internal/sqltype"
	"reportgen/internal/value"
)

const (
	// PathSeparator joins relation segments in a field path.
	PathSeparator = "__"
	// IdentityField addresses the primary key of any entity.
	IdentityField = "pk"
)

// FieldKind classifies a field of an entity type.
type FieldKind int

const (
	// FieldInvalid marks a path that does not name a reportable field.
	FieldInvalid FieldKind = iota
	// FieldDirect is a stored attribute.
	FieldDirect
	// FieldToOne is a relation yielding at most one related entity.
	FieldToOne
	// FieldToMany is a relation yielding a collection.
	FieldToMany
	// FieldProperty is a derived attribute computed per entity.
	FieldProperty
	// FieldCustom is a user-defined attribute stored outside the entity's table.
	FieldCustom
)

func (k FieldKind) String() string {
	switch k {
	case FieldDirect:
		return "direct"
	case FieldToOne:
		return "to_one"
	case FieldToMany:
		return "to_many"
	case FieldProperty:
		return "property"
	case FieldCustom:
		return "custom"
	default:
		return "invalid"
	}
}

// IsRelation reports whether the kind traverses to another entity type.
func (k FieldKind) IsRelation() bool {
	return k == FieldToOne || k == FieldToMany
}

// Choice maps a stored raw value to its display label.
type Choice struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Field describes one attribute or relation of an entity type.
type Field struct {
	Name     string
	Label    string
	Kind     FieldKind
	Choices  []Choice
	Target   string
	DataType sqltype.Category
}

// EntityType is the capability interface every reportable entity exposes.
type EntityType interface {
	Name() string
	PrimaryKey() string
	Fields() []Field
	// RelationTarget returns the related type for a relation field, or nil.
	RelationTarget(field string) EntityType
}

// Entity is one record of an EntityType, loaded by key.
type Entity interface {
	Type() EntityType
	Key() value.Value
	// Attr returns a direct or property value; unknown names yield Null.
	Attr(ctx context.Context, name string) (value.Value, error)
	// Related follows a relation. For to-one relations key is ignored; for to-many
	// relations it selects the member with that key. A missing entity is nil.
	Related(ctx context.Context, relation string, key value.Value) (Entity, error)
	// CustomValue returns a custom field value; unknown names yield Null.
	CustomValue(ctx context.Context, name string) (value.Value, error)
}

// CustomFieldRegistry lists user-defined fields attached to an entity type.
type CustomFieldRegistry interface {
	CustomFields(ctx context.Context, et EntityType) ([]Field, error)
}

// FieldByName looks up a field declared on et.
func FieldByName(et EntityType, name string) (Field, bool) {
	if et == nil {
		return Field{}, false
	}
	for _, f := range et.Fields() {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SplitPath splits a path into its segments, dropping empty ones.
func SplitPath(path string) []string {
	parts := strings.Split(path, PathSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPath joins segments with PathSeparator.
func JoinPath(segments ...string) string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, PathSeparator)
}

// SplitTerminal separates the relation prefix of a path from its terminal field.
// "dept__manager__name" yields ("dept__manager", "name").
func SplitTerminal(path string) (prefix, field string) {
	idx := strings.LastIndex(path, PathSeparator)
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+len(PathSeparator):]
}
