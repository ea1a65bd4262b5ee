package schema

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"reportgen/internal/value"
)

// PropertyFunc computes a derived attribute for one entity.
type PropertyFunc func(ctx context.Context, e Entity) (value.Value, error)

// Property is a derived attribute registered on a model.
type Property struct {
	Name    string
	Label   string
	Compute PropertyFunc
}

// PropertyDefinition declares a template property in configuration.
// The template sees every direct field of the entity by name, e.g.
// "{{.first_name}} {{.last_name}}".
type PropertyDefinition struct {
	Model    string `mapstructure:"model" yaml:"model"`
	Name     string `mapstructure:"name" yaml:"name"`
	Label    string `mapstructure:"label" yaml:"label"`
	Template string `mapstructure:"template" yaml:"template"`
}

// TemplateProperty compiles a text/template into a Property.
func TemplateProperty(name, label, text string) (Property, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return Property{}, fmt.Errorf("failed to parse template for property %s: %w", name, err)
	}
	return Property{
		Name:  name,
		Label: label,
		Compute: func(ctx context.Context, e Entity) (value.Value, error) {
			data := make(map[string]string)
			for _, f := range e.Type().Fields() {
				if f.Kind != FieldDirect {
					continue
				}
				v, err := e.Attr(ctx, f.Name)
				if err != nil {
					return value.Null(), err
				}
				data[f.Name] = v.String()
			}
			var b strings.Builder
			if err := tmpl.Execute(&b, data); err != nil {
				return value.Null(), fmt.Errorf("failed to render property %s: %w", name, err)
			}
			return value.Text(b.String()), nil
		},
	}, nil
}
