package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form.
// Checks custom overrides first, then falls back to the inflection library.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
// Checks custom overrides first, then falls back to the inflection library.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	return inflection.Singular(word)
}

// EntityLabel returns the singular human label of a table.
// Example: "order_items" -> "Order item"
func (n *Namer) EntityLabel(tableName string) string {
	words := strings.Split(sanitize(tableName), "_")
	if len(words) > 0 {
		words[len(words)-1] = n.Singularize(words[len(words)-1])
	}
	return Capitalize(strings.Join(words, " "))
}
