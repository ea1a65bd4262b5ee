package report

import (
	"context"

	"reportgen/internal/schema"
)

// User identifies who a report runs for.
type User struct {
	ID    string
	Roles []string
}

// Capability is an entity-level permission.
type Capability string

const (
	CapabilityView   Capability = "view"
	CapabilityChange Capability = "change"
)

// Permissions answers capability checks for the engine.
type Permissions interface {
	HasCapability(ctx context.Context, user User, et schema.EntityType, capability Capability) bool
}

// PermissionsFunc adapts a function to Permissions.
type PermissionsFunc func(ctx context.Context, user User, et schema.EntityType, capability Capability) bool

// HasCapability calls f.
func (f PermissionsFunc) HasCapability(ctx context.Context, user User, et schema.EntityType, capability Capability) bool {
	return f(ctx, user, et, capability)
}

// canRead reports whether user may view or change et.
func canRead(ctx context.Context, perms Permissions, user User, et schema.EntityType) bool {
	if perms == nil {
		return true
	}
	return perms.HasCapability(ctx, user, et, CapabilityChange) ||
		perms.HasCapability(ctx, user, et, CapabilityView)
}

// AllowedColumns is the precomputed permission decision for one report run.
// Indexes refer to the column slice it was computed from.
type AllowedColumns struct {
	Root   bool
	denied map[int]struct{}
	// Denied lists the display names of suppressed columns in column order.
	Denied []string
}

// AllowAll permits the root and every column.
func AllowAll() AllowedColumns {
	return AllowedColumns{Root: true}
}

// Allows reports whether column i may be shown.
func (a AllowedColumns) Allows(i int) bool {
	_, denied := a.denied[i]
	return !denied
}

// ComputeAllowed checks every column's owning entity type once. Columns whose
// path resolves to no entity type are never suppressed; invalid columns are
// skipped since they are dropped before planning anyway.
func ComputeAllowed(ctx context.Context, root schema.EntityType, columns []Column, user User, perms Permissions) AllowedColumns {
	allowed := AllowedColumns{
		Root:   canRead(ctx, perms, user, root),
		denied: make(map[int]struct{}),
	}
	decisions := make(map[string]bool)
	for i, c := range columns {
		if c.Kind == schema.FieldInvalid {
			continue
		}
		owner := schema.Resolve(root, c.Prefix())
		if owner == nil {
			continue
		}
		ok, seen := decisions[owner.Name()]
		if !seen {
			ok = canRead(ctx, perms, user, owner)
			decisions[owner.Name()] = ok
		}
		if !ok {
			allowed.denied[i] = struct{}{}
			allowed.Denied = append(allowed.Denied, c.DisplayName())
		}
	}
	return allowed
}
