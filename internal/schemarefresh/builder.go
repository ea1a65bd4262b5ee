package schemarefresh

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"reportgen/internal/introspection"
	"reportgen/internal/naming"
	"reportgen/internal/schema"
)

// BuildConfig defines the inputs of one catalog build.
type BuildConfig struct {
	Queryer      introspection.Queryer
	DatabaseName string
	Naming       naming.Config
	// ExcludeTables hides matching tables, as case-insensitive path.Match globs.
	ExcludeTables []string
	Properties    []schema.PropertyDefinition
	CustomFields  schema.CustomFieldRegistry
	Logger        *slog.Logger
}

// BuildCatalog introspects the database and assembles the model catalog.
func BuildCatalog(ctx context.Context, cfg BuildConfig) (*introspection.Schema, *schema.Catalog, error) {
	if cfg.Queryer == nil {
		return nil, nil, fmt.Errorf("catalog builder requires an introspection queryer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	namer := naming.New(cfg.Naming, logger)
	dbSchema, err := introspection.IntrospectDatabase(ctx, cfg.Queryer, cfg.DatabaseName, namer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to introspect database: %w", err)
	}

	if removed := ExcludeTables(dbSchema, cfg.ExcludeTables); len(removed) > 0 {
		logger.Info("excluded tables from reports", slog.Any("tables", removed))
	}

	// Relationship names are derived again so excluded tables do not
	// influence the naming of the remaining ones.
	namer = naming.New(cfg.Naming, logger)
	if err := introspection.RebuildRelationships(ctx, dbSchema, namer); err != nil {
		return nil, nil, fmt.Errorf("failed to rebuild relationships: %w", err)
	}

	opts := []schema.CatalogOption{
		schema.WithPropertyDefinitions(cfg.Properties),
		schema.WithCatalogLogger(logger),
	}
	if cfg.CustomFields != nil {
		opts = append(opts, schema.WithCustomFieldRegistry(cfg.CustomFields))
	}
	catalog, err := schema.NewCatalog(dbSchema, namer, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build model catalog: %w", err)
	}
	return dbSchema, catalog, nil
}

// ExcludeTables removes tables matching any pattern and returns their names.
// Invalid patterns match nothing.
func ExcludeTables(s *introspection.Schema, patterns []string) []string {
	if s == nil || len(patterns) == 0 {
		return nil
	}
	var removed []string
	kept := s.Tables[:0]
	for _, table := range s.Tables {
		if matchesAny(table.Name, patterns) {
			removed = append(removed, table.Name)
			continue
		}
		kept = append(kept, table)
	}
	s.Tables = kept
	return removed
}

func matchesAny(name string, patterns []string) bool {
	name = strings.ToLower(name)
	for _, pattern := range patterns {
		p := strings.TrimSpace(pattern)
		if p == "" {
			continue
		}
		if ok, err := path.Match(strings.ToLower(p), name); err == nil && ok {
			return true
		}
	}
	return false
}
