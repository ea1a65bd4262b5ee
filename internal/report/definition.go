package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"reportgen/internal/schema"
	"reportgen/internal/value"
)

// ErrInvalidDefinition is returned for report definitions missing required parts.
var ErrInvalidDefinition = errors.New("invalid report definition")

// Definition is a saved report read from YAML.
type Definition struct {
	Name        string       `yaml:"name"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Root        string       `yaml:"root"`
	Preview     bool         `yaml:"preview"`
	ColumnSpecs []ColumnSpec `yaml:"columns"`
	FilterSpecs []FilterSpec `yaml:"filters"`
}

// ColumnSpec is either a bare path string or a mapping with column options.
type ColumnSpec struct {
	Path          string          `yaml:"path"`
	Name          string          `yaml:"name"`
	Aggregate     Aggregate       `yaml:"aggregate"`
	Total         bool            `yaml:"total"`
	Group         bool            `yaml:"group"`
	Choices       []schema.Choice `yaml:"choices"`
	DisplayFormat string          `yaml:"display_format"`
	Sort          int             `yaml:"sort"`
	SortReverse   bool            `yaml:"sort_reverse"`
	Position      *int            `yaml:"position"`
}

// UnmarshalYAML accepts "dept__name" as shorthand for {path: dept__name}.
func (c *ColumnSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*c = ColumnSpec{Path: node.Value}
		return nil
	}
	type plain ColumnSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = ColumnSpec(p)
	return nil
}

// FilterSpec describes one property filter. Rows matching the condition are
// kept; with Exclude set they are dropped instead.
type FilterSpec struct {
	Path    string   `yaml:"path"`
	Op      FilterOp `yaml:"op"`
	Value   any      `yaml:"value"`
	Values  []any    `yaml:"values"`
	Exclude bool     `yaml:"exclude"`
}

// Columns converts the column specs. Positions default to list order.
func (d *Definition) Columns() []Column {
	columns := make([]Column, 0, len(d.ColumnSpecs))
	for i, spec := range d.ColumnSpecs {
		position := i
		if spec.Position != nil {
			position = *spec.Position
		}
		columns = append(columns, Column{
			Path:          spec.Path,
			Name:          spec.Name,
			Aggregate:     spec.Aggregate,
			Total:         spec.Total,
			Group:         spec.Group,
			Choices:       spec.Choices,
			DisplayFormat: spec.DisplayFormat,
			Sort:          spec.Sort,
			SortReverse:   spec.SortReverse,
			Position:      position,
		})
	}
	return columns
}

// Filters converts the filter specs into property filters.
func (d *Definition) Filters() ([]PropertyFilter, error) {
	filters := make([]PropertyFilter, 0, len(d.FilterSpecs))
	for _, spec := range d.FilterSpecs {
		operands := make([]value.Value, 0, len(spec.Values)+1)
		if spec.Value != nil {
			operands = append(operands, value.FromAny(spec.Value))
		}
		for _, v := range spec.Values {
			operands = append(operands, value.FromAny(v))
		}
		f, err := NewFilter(spec.Path, spec.Op, operands, spec.Exclude)
		if err != nil {
			return nil, fmt.Errorf("report %s: filter on %s: %w", d.Name, spec.Path, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// DisplayTitle returns Title, falling back to Name.
func (d *Definition) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// Validate checks required fields and filter operators.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if strings.TrimSpace(d.Root) == "" {
		return fmt.Errorf("%w: report %s: root is required", ErrInvalidDefinition, d.Name)
	}
	if len(d.ColumnSpecs) == 0 {
		return fmt.Errorf("%w: report %s: at least one column is required", ErrInvalidDefinition, d.Name)
	}
	for i, c := range d.ColumnSpecs {
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("%w: report %s: column %d has no path", ErrInvalidDefinition, d.Name, i)
		}
	}
	if _, err := d.Filters(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return nil
}

// ParseDefinition decodes and validates one YAML definition. An empty name
// is replaced by fallbackName.
func ParseDefinition(data []byte, fallbackName string) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse report definition: %w", err)
	}
	if d.Name == "" {
		d.Name = fallbackName
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadDefinition reads one definition file; the file's base name is the default report name.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report definition: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseDefinition(data, base)
}

// LoadDefinitions reads every *.yaml and *.yml file in dir, sorted by name.
// Duplicate names are rejected.
func LoadDefinitions(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read report directory: %w", err)
	}
	var defs []*Definition
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		d, err := LoadDefinition(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("%w: report %s defined in both %s and %s", ErrInvalidDefinition, d.Name, prev, path)
		}
		seen[d.Name] = path
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}
