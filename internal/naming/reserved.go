package naming

import "strings"

// identityField is the path segment that always addresses an entity's primary key.
const identityField = "pk"

// aggregateSuffixes are appended to aggregated column keys and cannot be field names.
var aggregateSuffixes = []string{"avg", "max", "min", "count", "sum"}

// isReservedFieldName checks if a field name would be ambiguous inside a report path.
func isReservedFieldName(name string) bool {
	lowerName := strings.ToLower(name)
	if lowerName == identityField {
		return true
	}
	for _, suffix := range aggregateSuffixes {
		if lowerName == suffix {
			return true
		}
	}
	return false
}

// sanitize removes path separators from a SQL name so it can be used as one path segment.
func sanitize(name string) string {
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(name, "_")
}
