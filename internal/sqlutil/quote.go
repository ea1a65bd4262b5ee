// Package sqlutil provides SQL identifier helpers shared by introspection and the SQL fetcher.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QualifiedColumn returns alias.column with both parts quoted.
// An empty alias yields just the quoted column.
func QualifiedColumn(alias, column string) string {
	if alias == "" {
		return QuoteIdentifier(column)
	}
	return QuoteIdentifier(alias) + "." + QuoteIdentifier(column)
}

// JoinAlias derives a table alias for a chain of relation names.
// The root table uses "t0"; nested relations are joined with "__" so aliases
// stay unique per relation path.
func JoinAlias(relations []string) string {
	if len(relations) == 0 {
		return "t0"
	}
	return "t0__" + strings.Join(relations, "__")
}
