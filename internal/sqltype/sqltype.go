// Package sqltype provides a shared mapping from SQL data types to report value categories.
// This keeps schema classification and row decoding consistent.
package sqltype

import "strings"

// Category represents how values of a SQL column are interpreted in a report.
type Category int

const (
	// CategoryText is the default for character, binary, and unknown SQL types.
	CategoryText Category = iota
	// CategoryInt represents integer numeric types.
	CategoryInt
	// CategoryDecimal represents floating-point and fixed-point numeric types.
	CategoryDecimal
	// CategoryBool represents boolean types, including tinyint(1).
	CategoryBool
	// CategoryDate represents date and time types.
	CategoryDate
	// CategoryJSON represents JSON data types.
	CategoryJSON
)

// Map converts a SQL data type string to its value category.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching,
// except that tinyint(1) is treated as a boolean.
// This handles both INFORMATION_SCHEMA.COLUMNS.DATA_TYPE and COLUMN_TYPE.
func Map(sqlType string) Category {
	normalized := strings.ToLower(strings.TrimSpace(sqlType))
	if strings.HasPrefix(normalized, "tinyint(1)") {
		return CategoryBool
	}
	if idx := strings.Index(normalized, "("); idx != -1 {
		normalized = normalized[:idx]
	}
	normalized = strings.TrimSpace(strings.TrimSuffix(normalized, " unsigned"))
	switch normalized {
	case "tinyint", "smallint", "mediumint", "int",
		"integer", "bigint", "serial", "bit":
		return CategoryInt
	case "float", "double", "real", "decimal", "numeric":
		return CategoryDecimal
	case "bool", "boolean":
		return CategoryBool
	case "json":
		return CategoryJSON
	case "date", "datetime", "timestamp", "time", "year":
		return CategoryDate
	default:
		return CategoryText
	}
}

// IsNumeric reports whether the category accepts Avg and Sum aggregates.
func (c Category) IsNumeric() bool {
	return c == CategoryInt || c == CategoryDecimal
}

// String returns a short name used in logs and field listings.
func (c Category) String() string {
	switch c {
	case CategoryInt:
		return "int"
	case CategoryDecimal:
		return "decimal"
	case CategoryBool:
		return "bool"
	case CategoryDate:
		return "date"
	case CategoryJSON:
		return "json"
	default:
		return "text"
	}
}
