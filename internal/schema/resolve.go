package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Resolve walks path from root and returns the entity type owning the terminal segment.
// Unknown segments stop the walk at the type reached so far; it never fails.
func Resolve(root EntityType, path string) EntityType {
	current := root
	for _, segment := range SplitPath(path) {
		if current == nil {
			return nil
		}
		field, ok := FieldByName(current, segment)
		if !ok || !field.Kind.IsRelation() {
			return current
		}
		next := current.RelationTarget(segment)
		if next == nil {
			return current
		}
		current = next
	}
	return current
}

// ResolveField returns the entity type owning the terminal segment of path and the
// terminal field itself. Custom fields are looked up through registry when the
// terminal segment is not declared on the type.
func ResolveField(ctx context.Context, root EntityType, path string, registry CustomFieldRegistry) (EntityType, Field, error) {
	prefix, name := SplitTerminal(path)
	owner := root
	if prefix != "" {
		owner = Resolve(root, prefix)
		// A prefix that stops early did not resolve fully.
		if len(SplitPath(prefix)) != walkedDepth(root, prefix) {
			return owner, Field{Name: name, Kind: FieldInvalid}, nil
		}
	}
	if name == IdentityField && owner != nil {
		if f, ok := FieldByName(owner, owner.PrimaryKey()); ok {
			f.Name = IdentityField
			return owner, f, nil
		}
		return owner, Field{Name: IdentityField, Kind: FieldDirect}, nil
	}
	if f, ok := FieldByName(owner, name); ok {
		return owner, f, nil
	}
	if registry != nil && owner != nil {
		custom, err := registry.CustomFields(ctx, owner)
		if err != nil {
			return owner, Field{}, fmt.Errorf("failed to list custom fields for %s: %w", owner.Name(), err)
		}
		for _, f := range custom {
			if f.Name == name {
				f.Kind = FieldCustom
				return owner, f, nil
			}
		}
	}
	return owner, Field{Name: name, Kind: FieldInvalid}, nil
}

// walkedDepth counts how many leading segments of path are relations that resolve.
func walkedDepth(root EntityType, path string) int {
	current := root
	depth := 0
	for _, segment := range SplitPath(path) {
		field, ok := FieldByName(current, segment)
		if !ok || !field.Kind.IsRelation() {
			return depth
		}
		next := current.RelationTarget(segment)
		if next == nil {
			return depth
		}
		current = next
		depth++
	}
	return depth
}

// Classification partitions the fields of an entity type.
type Classification struct {
	Direct     []Field
	Relations  []Field
	Properties []Field
	Custom     []Field
}

// Classify partitions et's fields into direct attributes, relations, properties
// (sorted by name, names ending in "pk" excluded) and custom fields from registry.
func Classify(ctx context.Context, et EntityType, registry CustomFieldRegistry) (Classification, error) {
	var c Classification
	if et == nil {
		return c, nil
	}
	for _, f := range et.Fields() {
		switch f.Kind {
		case FieldDirect:
			c.Direct = append(c.Direct, f)
		case FieldToOne, FieldToMany:
			c.Relations = append(c.Relations, f)
		case FieldProperty:
			if strings.HasSuffix(f.Name, IdentityField) {
				continue
			}
			c.Properties = append(c.Properties, f)
		case FieldCustom:
			c.Custom = append(c.Custom, f)
		}
	}
	sort.SliceStable(c.Properties, func(i, j int) bool {
		return c.Properties[i].Name < c.Properties[j].Name
	})
	if registry != nil {
		custom, err := registry.CustomFields(ctx, et)
		if err != nil {
			return c, fmt.Errorf("failed to list custom fields for %s: %w", et.Name(), err)
		}
		for _, f := range custom {
			f.Kind = FieldCustom
			c.Custom = append(c.Custom, f)
		}
	}
	return c, nil
}
