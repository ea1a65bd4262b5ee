package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"reportgen/internal/introspection"
	"reportgen/internal/naming"
)

// Catalog holds every reportable model of a database.
type Catalog struct {
	models   map[string]*Model
	order    []string
	registry CustomFieldRegistry
	logger   *slog.Logger
}

// CatalogOption configures NewCatalog.
type CatalogOption func(*catalogOptions)

type catalogOptions struct {
	definitions []PropertyDefinition
	properties  map[string][]Property
	registry    CustomFieldRegistry
	logger      *slog.Logger
}

// WithPropertyDefinitions registers template properties from configuration.
func WithPropertyDefinitions(defs []PropertyDefinition) CatalogOption {
	return func(o *catalogOptions) {
		o.definitions = append(o.definitions, defs...)
	}
}

// WithProperty registers a Go-computed property on the named model.
func WithProperty(model string, p Property) CatalogOption {
	return func(o *catalogOptions) {
		o.properties[model] = append(o.properties[model], p)
	}
}

// WithCustomFieldRegistry attaches a custom field source.
func WithCustomFieldRegistry(r CustomFieldRegistry) CatalogOption {
	return func(o *catalogOptions) {
		o.registry = r
	}
}

// WithCatalogLogger sets the logger for skipped tables and naming warnings.
func WithCatalogLogger(logger *slog.Logger) CatalogOption {
	return func(o *catalogOptions) {
		o.logger = logger
	}
}

// NewCatalog builds models from an introspected schema. Tables without a
// single-column primary key cannot be reported on and are skipped.
func NewCatalog(s *introspection.Schema, namer *naming.Namer, opts ...CatalogOption) (*Catalog, error) {
	o := catalogOptions{properties: make(map[string][]Property)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if namer == nil {
		namer = naming.New(naming.DefaultConfig(), o.logger)
	}

	c := &Catalog{
		models:   make(map[string]*Model),
		registry: o.registry,
		logger:   o.logger,
	}
	if s == nil {
		return c, nil
	}

	byTable := make(map[string]*Model)
	for _, table := range s.Tables {
		pks := introspection.PrimaryKeyColumns(table)
		if len(pks) != 1 {
			c.logger.Debug("skipping table without single-column primary key",
				slog.String("table", table.Name),
				slog.Int("primary_key_columns", len(pks)),
			)
			continue
		}
		name := namer.RegisterEntity(table.Name)
		m := newModel(c, name, namer.EntityLabel(table.Name), table.Name)
		m.pkColumn = pks[0].Name

		fkColumns := make(map[string]struct{})
		for _, rel := range table.Relationships {
			if rel.IsManyToOne {
				fkColumns[rel.LocalColumn] = struct{}{}
			}
		}

		for _, col := range table.Columns {
			if _, isFK := fkColumns[col.Name]; isFK {
				continue
			}
			fieldName := namer.RegisterColumnField(name, col.Name)
			m.columns[fieldName] = col.Name
			if col.Name == m.pkColumn {
				m.primaryKey = fieldName
			}
			m.addField(Field{
				Name:     fieldName,
				Label:    namer.Label(fieldName),
				Kind:     FieldDirect,
				Choices:  choicesFor(namer, col.EnumValues),
				DataType: col.Category(),
			})
		}

		c.models[name] = m
		c.order = append(c.order, name)
		byTable[table.Name] = m
	}

	// Relations are added once every model name is known.
	for _, table := range s.Tables {
		m, ok := byTable[table.Name]
		if !ok {
			continue
		}
		for _, rel := range table.Relationships {
			target, ok := byTable[rel.RemoteTable]
			if !ok {
				continue
			}
			kind := FieldToMany
			if rel.IsManyToOne {
				kind = FieldToOne
			}
			fieldName := namer.RegisterRelationshipField(m.name, rel.FieldName, rel.RemoteTable, rel.IsManyToOne)
			field := Field{
				Name:   fieldName,
				Label:  namer.Label(fieldName),
				Kind:   kind,
				Target: target.name,
			}
			if kind == FieldToOne {
				if col, ok := columnByName(table, rel.LocalColumn); ok {
					field.DataType = col.Category()
				}
			}
			m.addField(field)
			m.relations[fieldName] = Relation{
				Name:         fieldName,
				Kind:         kind,
				Target:       target.name,
				LocalColumn:  rel.LocalColumn,
				RemoteColumn: rel.RemoteColumn,
			}
		}
	}

	for _, def := range o.definitions {
		m, ok := c.models[def.Model]
		if !ok {
			return nil, fmt.Errorf("property %s references unknown model %s", def.Name, def.Model)
		}
		label := def.Label
		if label == "" {
			label = namer.Label(def.Name)
		}
		p, err := TemplateProperty(def.Name, label, def.Template)
		if err != nil {
			return nil, err
		}
		c.addProperty(namer, m, p)
	}
	for modelName, props := range o.properties {
		m, ok := c.models[modelName]
		if !ok {
			return nil, fmt.Errorf("property references unknown model %s", modelName)
		}
		for _, p := range props {
			c.addProperty(namer, m, p)
		}
	}

	return c, nil
}

func (c *Catalog) addProperty(namer *naming.Namer, m *Model, p Property) {
	name := namer.RegisterExtraField(m.name, p.Name, "property:"+p.Name)
	p.Name = name
	if p.Label == "" {
		p.Label = namer.Label(name)
	}
	m.properties[name] = p
	m.addField(Field{Name: name, Label: p.Label, Kind: FieldProperty})
}

// Model returns a model by name.
func (c *Catalog) Model(name string) (*Model, bool) {
	m, ok := c.models[name]
	return m, ok
}

// Models returns all models in table order.
func (c *Catalog) Models() []*Model {
	out := make([]*Model, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.models[name])
	}
	return out
}

// Registry returns the custom field registry, if any.
func (c *Catalog) Registry() CustomFieldRegistry {
	return c.registry
}

// FieldSet lists what a report builder can pick from one model.
type FieldSet struct {
	Model        string  `json:"model"`
	Fields       []Field `json:"fields"`
	CustomFields []Field `json:"custom_fields"`
	Properties   []Field `json:"properties"`
	Path         string  `json:"path"`
	PathVerbose  string  `json:"path_verbose"`
}

// Fields lists the direct fields, custom fields and properties of model, or of
// the model reached through its relation fieldName when one is given. Path and
// PathVerbose are extended by the traversed relation.
func (c *Catalog) Fields(ctx context.Context, model EntityType, fieldName, path, pathVerbose string) (FieldSet, error) {
	target := model
	if fieldName != "" {
		next, err := c.follow(model, fieldName)
		if err != nil {
			return FieldSet{}, err
		}
		target = next
		path += fieldName + PathSeparator
		if pathVerbose != "" {
			pathVerbose += "::"
		}
		pathVerbose += fieldName
	}

	classified, err := Classify(ctx, target, c.registry)
	if err != nil {
		return FieldSet{}, err
	}
	return FieldSet{
		Model:        target.Name(),
		Fields:       classified.Direct,
		CustomFields: classified.Custom,
		Properties:   classified.Properties,
		Path:         path,
		PathVerbose:  pathVerbose,
	}, nil
}

// RelatedFieldSet lists the relations reachable from one model.
type RelatedFieldSet struct {
	Model       string  `json:"model"`
	Relations   []Field `json:"relations"`
	Path        string  `json:"path"`
	PathVerbose string  `json:"path_verbose"`
}

// RelatedFields lists the relation fields of model, or of the model reached
// through fieldName when one is given.
func (c *Catalog) RelatedFields(model EntityType, fieldName, path, pathVerbose string) (RelatedFieldSet, error) {
	target := model
	if fieldName != "" {
		next, err := c.follow(model, fieldName)
		if err != nil {
			return RelatedFieldSet{}, err
		}
		target = next
		if pathVerbose != "" {
			pathVerbose += "::"
		}
		pathVerbose += fieldName
		path += fieldName + PathSeparator
	}

	var relations []Field
	for _, f := range target.Fields() {
		if f.Kind.IsRelation() {
			relations = append(relations, f)
		}
	}
	sort.SliceStable(relations, func(i, j int) bool { return relations[i].Name < relations[j].Name })
	return RelatedFieldSet{
		Model:       target.Name(),
		Relations:   relations,
		Path:        path,
		PathVerbose: pathVerbose,
	}, nil
}

func (c *Catalog) follow(model EntityType, fieldName string) (EntityType, error) {
	if model == nil {
		return nil, fmt.Errorf("no model given")
	}
	f, ok := FieldByName(model, fieldName)
	if !ok || !f.Kind.IsRelation() {
		return nil, fmt.Errorf("%s is not a relation of %s", fieldName, model.Name())
	}
	next := model.RelationTarget(fieldName)
	if next == nil {
		return nil, fmt.Errorf("relation %s of %s has no target", fieldName, model.Name())
	}
	return next, nil
}

func choicesFor(namer *naming.Namer, values []string) []Choice {
	if len(values) == 0 {
		return nil
	}
	out := make([]Choice, 0, len(values))
	for _, v := range values {
		out = append(out, Choice{Value: v, Label: namer.Label(v)})
	}
	return out
}

func columnByName(table introspection.Table, name string) (introspection.Column, bool) {
	for _, col := range table.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return introspection.Column{}, false
}
