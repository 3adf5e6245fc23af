package registry

import (
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/oremus-labs/genui-bridge/internal/uitree"
)

// Catalog is the on-disk description of a component set.
type Catalog struct {
	Components []Component `json:"components"`
}

// ParseCatalog decodes a YAML or JSON catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse component catalog: %w", err)
	}
	for i, c := range cat.Components {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("component %d has no name", i)
		}
	}
	return &cat, nil
}

// LoadCatalog reads path and registers its components on top of r. Built-in
// render functions are kept for components the catalog redefines.
func (r *Registry) LoadCatalog(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read component catalog: %w", err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return 0, err
	}
	for _, c := range cat.Components {
		if existing, ok := r.Lookup(c.Name); ok && c.Render == nil {
			c.Render = existing.Render
		}
		if err := r.Register(c); err != nil {
			return 0, err
		}
	}
	return len(cat.Components), nil
}

func object(required []string, props map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str() map[string]interface{} { return map[string]interface{}{"type": "string"} }

func enum(values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values}
}

func quoted(prop string) RenderFunc {
	return func(el uitree.Element) string {
		if v, ok := el.Prop(prop); ok {
			return fmt.Sprintf("%s %q", el.Type, v)
		}
		return el.Type
	}
}

// Default returns a registry holding the built-in design system. Unknown
// types render as a labelled placeholder.
func Default() *Registry {
	r := New(Component{
		Name:        "Unknown",
		Description: "Placeholder for element types the renderer does not know",
		Render: func(el uitree.Element) string {
			return fmt.Sprintf("[unknown %s]", el.Type)
		},
	})
	builtins := []Component{
		{
			Name:        "Card",
			Description: "Titled container",
			Container:   true,
			Props:       object(nil, map[string]interface{}{"title": str(), "description": str()}),
			Render:      quoted("title"),
		},
		{
			Name:        "Stack",
			Description: "Vertical or horizontal layout",
			Container:   true,
			Props: object(nil, map[string]interface{}{
				"direction": enum("vertical", "horizontal"),
				"gap":       enum("sm", "md", "lg"),
			}),
		},
		{
			Name:        "Grid",
			Description: "Column grid layout",
			Container:   true,
			Props:       object(nil, map[string]interface{}{"columns": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 12}}),
		},
		{
			Name:        "Heading",
			Description: "Section heading",
			Props: object([]string{"text"}, map[string]interface{}{
				"text":  str(),
				"level": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 6},
			}),
			Render: quoted("text"),
		},
		{
			Name:        "Text",
			Description: "Paragraph of text",
			Props:       object(nil, map[string]interface{}{"text": str(), "children": str(), "tone": enum("default", "muted", "danger")}),
		},
		{
			Name:        "Metric",
			Description: "Labelled value with optional change",
			Props: object([]string{"label", "value"}, map[string]interface{}{
				"label":  str(),
				"value":  map[string]interface{}{"type": []string{"string", "number"}},
				"change": str(),
				"trend":  enum("up", "down", "flat"),
			}),
			Render: func(el uitree.Element) string {
				label, _ := el.Prop("label")
				value, _ := el.Prop("value")
				return fmt.Sprintf("Metric %s: %s", label, value)
			},
		},
		{
			Name:        "Button",
			Description: "Action trigger",
			Props: object([]string{"label"}, map[string]interface{}{
				"label":   str(),
				"action":  str(),
				"variant": enum("primary", "secondary", "danger"),
			}),
			Render: quoted("label"),
		},
		{
			Name:        "Badge",
			Description: "Short status label",
			Props:       object([]string{"text"}, map[string]interface{}{"text": str(), "tone": enum("info", "success", "warning", "danger")}),
			Render:      quoted("text"),
		},
		{
			Name:        "Alert",
			Description: "Callout message",
			Props:       object(nil, map[string]interface{}{"title": str(), "message": str(), "tone": enum("info", "success", "warning", "danger")}),
			Render:      quoted("title"),
		},
		{
			Name:        "Image",
			Description: "Image with alt text",
			Props:       object([]string{"src"}, map[string]interface{}{"src": str(), "alt": str()}),
			Render:      quoted("alt"),
		},
		{
			Name:        "List",
			Description: "Bulleted list",
			Container:   true,
			Props:       object(nil, map[string]interface{}{"items": map[string]interface{}{"type": "array", "items": str()}, "ordered": map[string]interface{}{"type": "boolean"}}),
		},
		{
			Name:        "Table",
			Description: "Rows and columns",
			Props: object([]string{"columns"}, map[string]interface{}{
				"columns": map[string]interface{}{"type": "array", "items": str()},
				"rows":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "array"}},
			}),
		},
		{
			Name:        "Divider",
			Description: "Horizontal rule",
			Props:       object(nil, map[string]interface{}{}),
		},
		{
			Name:        "Input",
			Description: "Single-line form field",
			Props:       object([]string{"name"}, map[string]interface{}{"name": str(), "label": str(), "placeholder": str()}),
			Render:      quoted("label"),
		},
		{
			Name:        "Form",
			Description: "Groups inputs and submits them as an action",
			Container:   true,
			Props:       object(nil, map[string]interface{}{"action": str(), "submitLabel": str()}),
		},
	}
	for _, c := range builtins {
		_ = r.Register(c)
	}
	return r
}
