// Package naming derives report field names, relation names and human labels
// from SQL schema names, including pluralization, collision detection and
// reserved name handling.
package naming

// Config holds naming customization options
type Config struct {
	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	// Example: {"people": "person", "data": "datum"}
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`

	// LabelOverrides maps a field name to the label shown in report headers.
	// Example: {"dob": "Date of birth"}
	LabelOverrides map[string]string `mapstructure:"label_overrides"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
		LabelOverrides:    make(map[string]string),
	}
}
