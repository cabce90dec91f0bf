// Package catalog derives the advertised MCP tool list from one schema
// template per resource kind.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/datalake-tools/lakeformation-mcp/api"
	"github.com/datalake-tools/lakeformation-mcp/internal/permission"
)

const permissionsField = "permissions"

// Field is one argument of a template.
type Field struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Items       string `yaml:"items,omitempty"`
	Description string `yaml:"description,omitempty"`
	Default     any    `yaml:"default,omitempty"`
}

// Template describes the arguments accepted for one resource kind.
type Template struct {
	Kind        permission.Kind `yaml:"kind"`
	Description string          `yaml:"description"`
	Fields      []Field         `yaml:"fields"`
}

type templateFile struct {
	Version   string     `yaml:"version"`
	Service   string     `yaml:"service"`
	Templates []Template `yaml:"templates"`
}

// ToolDescriptor is one advertised tool.
type ToolDescriptor struct {
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description" yaml:"description"`
	InputSchema map[string]any       `json:"inputSchema" yaml:"inputSchema"`
	Operation   permission.Operation `json:"-" yaml:"-"`
	Kind        permission.Kind      `json:"-" yaml:"-"`
	Required    []string             `json:"-" yaml:"-"`
}

// Catalog is the read-only tool table built once at start-up.
type Catalog struct {
	service string
	tools   []ToolDescriptor
	byName  map[string]int
}

// Default builds the catalog from the embedded templates.
func Default() (*Catalog, error) {
	return New(api.PermissionTemplates)
}

// New parses templates YAML and generates a grant and a revoke tool per template.
func New(templatesYAML []byte) (*Catalog, error) {
	var parsed templateFile
	if err := yaml.Unmarshal(templatesYAML, &parsed); err != nil {
		return nil, fmt.Errorf("decoding permission templates: %w", err)
	}
	if len(parsed.Templates) == 0 {
		return nil, fmt.Errorf("permission templates are empty")
	}

	seenKinds := make(map[permission.Kind]struct{}, len(parsed.Templates))
	tools := make([]ToolDescriptor, 0, 2*len(parsed.Templates))
	for _, tmpl := range parsed.Templates {
		if !tmpl.Kind.Valid() {
			return nil, fmt.Errorf("template has unknown kind %q", tmpl.Kind)
		}
		if _, exists := seenKinds[tmpl.Kind]; exists {
			return nil, fmt.Errorf("duplicate template for kind %q", tmpl.Kind)
		}
		seenKinds[tmpl.Kind] = struct{}{}
		if err := validateTemplate(tmpl); err != nil {
			return nil, err
		}
		tools = append(tools, Generate(tmpl)...)
	}

	byName := make(map[string]int, len(tools))
	for i, tool := range tools {
		byName[tool.Name] = i
	}

	return &Catalog{
		service: strings.TrimSpace(parsed.Service),
		tools:   tools,
		byName:  byName,
	}, nil
}

// Generate expands one template into its grant and revoke descriptors.
// Required fields are those without a default, in template order.
func Generate(tmpl Template) []ToolDescriptor {
	properties := make(map[string]any, len(tmpl.Fields))
	required := make([]string, 0, len(tmpl.Fields))
	for _, field := range tmpl.Fields {
		property := map[string]any{"type": field.Type}
		if field.Description != "" {
			property["description"] = field.Description
		}
		if field.Items != "" {
			property["items"] = map[string]any{"type": field.Items}
		}
		if field.Default != nil {
			property["default"] = field.Default
		} else {
			required = append(required, field.Name)
		}
		properties[field.Name] = property
	}

	descriptors := make([]ToolDescriptor, 0, len(permission.Operations()))
	for _, op := range permission.Operations() {
		descriptors = append(descriptors, ToolDescriptor{
			Name:        ToolName(op, tmpl.Kind),
			Description: fmt.Sprintf("%ss %s", op.Title(), tmpl.Description),
			InputSchema: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
			Operation: op,
			Kind:      tmpl.Kind,
			Required:  slices.Clone(required),
		})
	}
	return descriptors
}

// ToolName returns "<operation>_<kind>_permissions".
func ToolName(op permission.Operation, kind permission.Kind) string {
	return fmt.Sprintf("%s_%s_permissions", op.Lower(), kind)
}

// Service returns the service name declared by the templates.
func (c *Catalog) Service() string {
	return c.service
}

// AllTools returns every descriptor in generation order. Schemas are shared
// and must be treated as read-only.
func (c *Catalog) AllTools() []ToolDescriptor {
	return slices.Clone(c.tools)
}

// Lookup resolves an exact tool name.
func (c *Catalog) Lookup(name string) (ToolDescriptor, bool) {
	i, ok := c.byName[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return c.tools[i], true
}

// YAML renders the generated tool list.
func (c *Catalog) YAML() ([]byte, error) {
	out, err := yaml.Marshal(struct {
		Service string           `yaml:"service"`
		Tools   []ToolDescriptor `yaml:"tools"`
	}{Service: c.service, Tools: c.tools})
	if err != nil {
		return nil, fmt.Errorf("encoding tool catalog: %w", err)
	}
	return out, nil
}

func validateTemplate(tmpl Template) error {
	if strings.TrimSpace(tmpl.Description) == "" {
		return fmt.Errorf("template %q has empty description", tmpl.Kind)
	}
	if len(tmpl.Fields) == 0 {
		return fmt.Errorf("template %q has no fields", tmpl.Kind)
	}
	seen := make(map[string]struct{}, len(tmpl.Fields))
	for _, field := range tmpl.Fields {
		if strings.TrimSpace(field.Name) == "" {
			return fmt.Errorf("template %q contains empty field name", tmpl.Kind)
		}
		if _, exists := seen[field.Name]; exists {
			return fmt.Errorf("template %q contains duplicate field %q", tmpl.Kind, field.Name)
		}
		seen[field.Name] = struct{}{}

		switch field.Type {
		case "string":
		case "array":
			if field.Items == "" {
				return fmt.Errorf("template %q field %q is an array without items type", tmpl.Kind, field.Name)
			}
		default:
			return fmt.Errorf("template %q field %q has unsupported type %q", tmpl.Kind, field.Name, field.Type)
		}

		if field.Name == permissionsField {
			if err := checkDefaultPermissions(tmpl.Kind, field.Default); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkDefaultPermissions keeps the advertised default in lockstep with the
// default the request factory applies.
func checkDefaultPermissions(kind permission.Kind, raw any) error {
	want := permission.DefaultPermissions(kind)
	items, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("template %q permissions default must be a list, want %v", kind, want)
	}
	got := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return fmt.Errorf("template %q permissions default must contain strings", kind)
		}
		got = append(got, s)
	}
	if !slices.Equal(got, want) {
		return fmt.Errorf("template %q permissions default %v does not match %v", kind, got, want)
	}
	return nil
}
