package naming

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Namer provides all name transformation functions for converting SQL names
// to report field names. It handles pluralization, reserved words, and collisions.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new catalog build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// FieldName converts a column name into a single report path segment.
// Example: "user__name" -> "user_name"
func (n *Namer) FieldName(columnName string) string {
	return sanitize(columnName)
}

// ManyToOneFieldName generates the relation name for a many-to-one relationship
// based on the FK column name with common suffixes stripped.
// Example: "author_id" -> "author", "created_by_user_id" -> "created_by_user"
func (n *Namer) ManyToOneFieldName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.FieldName(name)
}

// OneToManyFieldName generates the relation name for a one-to-many relationship.
// If isOnlyFK is true (single FK from source table), uses the pluralized table name.
// Otherwise, prefixes with the FK column name for disambiguation.
// Example: isOnlyFK=true: "comment" -> "comments"
// Example: isOnlyFK=false, fkColumn="author_id": "posts" -> "author_posts"
func (n *Namer) OneToManyFieldName(sourceTable, fkColumn string, isOnlyFK bool) string {
	tablePlural := n.Pluralize(n.FieldName(sourceTable))
	if isOnlyFK {
		return tablePlural
	}
	return n.ManyToOneFieldName(fkColumn) + "_" + tablePlural
}

// Label converts a field name into a human readable label.
// Example: "created_at" -> "Created at"
func (n *Namer) Label(fieldName string) string {
	if override, ok := n.config.LabelOverrides[fieldName]; ok {
		return override
	}
	return Capitalize(strings.ReplaceAll(sanitize(fieldName), "_", " "))
}

// Capitalize upper-cases the first letter of s and leaves the rest untouched.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// RegisterEntity registers a table name and returns the resolved entity name.
// If a collision occurs, returns a suffixed name and logs a warning.
func (n *Namer) RegisterEntity(tableName string) string {
	return n.resolver.RegisterEntity(n.FieldName(tableName), tableName)
}

// RegisterColumnField registers a column field and returns the resolved field name.
// Columns always win in precedence, so this establishes the field name.
func (n *Namer) RegisterColumnField(entityName, columnName string) string {
	fieldName := n.validateFieldAndSuffix(n.FieldName(columnName))
	return n.resolver.RegisterField(entityName, fieldName, "column:"+columnName)
}

// RegisterRelationshipField registers a relationship field and returns the resolved name.
// If the field collides with a column, applies the _ref or _rel suffix.
func (n *Namer) RegisterRelationshipField(entityName, fieldName, source string, isManyToOne bool) string {
	fieldName = n.validateFieldAndSuffix(fieldName)
	if n.resolver.FieldExists(entityName, fieldName) {
		if isManyToOne {
			fieldName = fieldName + "_ref"
		} else {
			fieldName = fieldName + "_rel"
		}
	}
	return n.resolver.RegisterField(entityName, fieldName, "relationship:"+source)
}

// RegisterExtraField registers a property or custom field name and returns the resolved name.
func (n *Namer) RegisterExtraField(entityName, fieldName, source string) string {
	fieldName = n.validateFieldAndSuffix(n.FieldName(fieldName))
	return n.resolver.RegisterField(entityName, fieldName, source)
}

func (n *Namer) validateFieldAndSuffix(name string) string {
	if isReservedFieldName(name) {
		safeName := name + "_"
		n.logger.Warn("field name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}
