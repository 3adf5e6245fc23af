// Package registry maps element type names to component descriptions.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oremus-labs/genui-bridge/internal/uitree"
)

// RenderFunc produces the one-line outline label for an element.
type RenderFunc func(el uitree.Element) string

// Component describes one renderable element type. Props is a JSON schema
// for the element's props object; only Container components may list
// children.
type Component struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Props       map[string]interface{} `json:"props,omitempty"`
	Container   bool                   `json:"container,omitempty"`
	Render      RenderFunc             `json:"-"`
}

// Label renders el with the component's RenderFunc or a generic label.
func (c Component) Label(el uitree.Element) string {
	if c.Render != nil {
		return c.Render(el)
	}
	return defaultLabel(el)
}

// Registry is safe for concurrent lookups and registration.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
	fallback   Component
}

// New returns an empty registry whose unknown types resolve to fallback.
func New(fallback Component) *Registry {
	if fallback.Name == "" {
		fallback.Name = "Unknown"
	}
	return &Registry{
		components: make(map[string]Component),
		fallback:   fallback,
	}
}

// Register adds or replaces a component.
func (r *Registry) Register(c Component) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("component name required")
	}
	c.Name = name
	r.mu.Lock()
	r.components[name] = c
	r.mu.Unlock()
	return nil
}

// Lookup returns the component for typ. Unknown types yield the fallback
// and false.
func (r *Registry) Lookup(typ string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.components[typ]; ok {
		return c, true
	}
	return r.fallback, false
}

// Fallback returns the component used for unknown types.
func (r *Registry) Fallback() Component {
	return r.fallback
}

// Names lists registered component names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// List returns registered components sorted by name.
func (r *Registry) List() []Component {
	names := r.Names()
	out := make([]Component, 0, len(names))
	r.mu.RLock()
	for _, name := range names {
		out = append(out, r.components[name])
	}
	r.mu.RUnlock()
	return out
}

func defaultLabel(el uitree.Element) string {
	for _, key := range []string{"title", "label", "text", "children", "value"} {
		if v, ok := el.Prop(key); ok && v != "" {
			return fmt.Sprintf("%s %q", el.Type, v)
		}
	}
	return el.Type
}
