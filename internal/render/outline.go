// Package render turns a tree snapshot into a plain-text outline by
// dispatching each element through the component registry.
package render

import (
	"strings"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/registry"
	"github.com/oremus-labs/genui-bridge/internal/uitree"
)

// Visit is called for every reachable element in depth-first order.
type Visit func(el uitree.Element, depth int)

// Walk visits the elements reachable from the root. Dangling references
// and back edges are skipped, as are elements whose visible flag is false.
func Walk(tree jsonval.Value, visit Visit) {
	root := uitree.Root(tree)
	if root == "" {
		return
	}
	onPath := make(map[string]bool)
	var walk func(key string, depth int)
	walk = func(key string, depth int) {
		if onPath[key] {
			return
		}
		el, ok := uitree.Lookup(tree, key)
		if !ok || hidden(el) {
			return
		}
		visit(el, depth)
		onPath[key] = true
		for _, child := range el.Children {
			walk(child, depth+1)
		}
		delete(onPath, key)
	}
	walk(root, 0)
}

func hidden(el uitree.Element) bool {
	b, ok := el.Visible.AsBool()
	return ok && !b
}

// Outline renders one line per reachable element, indented two spaces per
// level.
func Outline(tree jsonval.Value, reg *registry.Registry) string {
	var b strings.Builder
	Walk(tree, func(el uitree.Element, depth int) {
		c, _ := reg.Lookup(el.Type)
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(c.Label(el))
		b.WriteByte('\n')
	})
	return b.String()
}
