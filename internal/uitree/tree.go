// Package uitree reads the flat UI tree format streamed by the model:
//
//	{"root": "page", "elements": {"page": {"key": "page", "type": "Card",
//	  "props": {...}, "children": ["title"]}, ...}}
package uitree

import (
	"fmt"
	"sort"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
)

// Element is a decoded view over one entry of the elements map.
type Element struct {
	Key      string
	Type     string
	Props    jsonval.Value
	Children []string
	Visible  jsonval.Value
}

// Empty returns a tree with no root and no elements.
func Empty() jsonval.Value {
	return jsonval.Object(
		jsonval.Pair("root", jsonval.String("")),
		jsonval.Pair("elements", jsonval.Object()),
	)
}

// Root returns the root element key.
func Root(tree jsonval.Value) string {
	root, _ := tree.GetString("root")
	return root
}

// Lookup decodes the element stored under key.
func Lookup(tree jsonval.Value, key string) (Element, bool) {
	elements, ok := tree.Get("elements")
	if !ok {
		return Element{}, false
	}
	raw, ok := elements.Get(key)
	if !ok || raw.Kind() != jsonval.KindObject {
		return Element{}, false
	}
	return decode(key, raw), true
}

// Elements returns every element in stream order.
func Elements(tree jsonval.Value) []Element {
	elements, ok := tree.Get("elements")
	if !ok {
		return nil
	}
	out := make([]Element, 0, elements.Len())
	for _, m := range elements.Members() {
		if m.Value.Kind() != jsonval.KindObject {
			continue
		}
		out = append(out, decode(m.Key, m.Value))
	}
	return out
}

func decode(key string, raw jsonval.Value) Element {
	el := Element{Key: key}
	if k, ok := raw.GetString("key"); ok && k != "" {
		el.Key = k
	}
	el.Type, _ = raw.GetString("type")
	el.Props, _ = raw.Get("props")
	el.Visible, _ = raw.Get("visible")
	if children, ok := raw.Get("children"); ok {
		for _, c := range children.Items() {
			if s, ok := c.AsString(); ok {
				el.Children = append(el.Children, s)
			}
		}
	}
	return el
}

// Prop returns a string prop when present.
func (e Element) Prop(name string) (string, bool) {
	v, ok := e.Props.Get(name)
	if !ok {
		return "", false
	}
	return v.Scalar()
}

// IssueKind classifies structural problems found by Check.
type IssueKind string

const (
	IssueMissingRoot    IssueKind = "missing_root"
	IssueDanglingChild  IssueKind = "dangling_child"
	IssueMissingType    IssueKind = "missing_type"
	IssueMalformed      IssueKind = "malformed_element"
	IssueUnreachable    IssueKind = "unreachable_element"
	IssueCycle          IssueKind = "cycle"
	IssueMissingElement IssueKind = "missing_elements"
)

// Issue is one structural finding.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Element string    `json:"element,omitempty"`
	Detail  string    `json:"detail"`
}

// Check inspects a snapshot for references that do not resolve. A tree that
// is still streaming normally has a few; callers decide whether they matter.
func Check(tree jsonval.Value) []Issue {
	var issues []Issue
	elements, ok := tree.Get("elements")
	if !ok || elements.Kind() != jsonval.KindObject {
		return []Issue{{Kind: IssueMissingElement, Detail: "tree has no elements object"}}
	}
	for _, m := range elements.Members() {
		if m.Value.Kind() != jsonval.KindObject {
			issues = append(issues, Issue{Kind: IssueMalformed, Element: m.Key, Detail: fmt.Sprintf("element is a %s", m.Value.Kind())})
		}
	}
	root := Root(tree)
	if root == "" {
		if elements.Len() > 0 {
			issues = append(issues, Issue{Kind: IssueMissingRoot, Detail: "root is not set"})
		}
	} else if !elements.Has(root) {
		issues = append(issues, Issue{Kind: IssueMissingRoot, Element: root, Detail: "root element not present"})
	}

	for _, el := range Elements(tree) {
		if el.Type == "" {
			issues = append(issues, Issue{Kind: IssueMissingType, Element: el.Key, Detail: "element has no type"})
		}
		for _, child := range el.Children {
			if !elements.Has(child) {
				issues = append(issues, Issue{Kind: IssueDanglingChild, Element: el.Key, Detail: fmt.Sprintf("child %q not present", child)})
			}
		}
	}

	if root != "" && elements.Has(root) {
		reached := map[string]bool{}
		var walk func(key string, path map[string]bool)
		walk = func(key string, path map[string]bool) {
			if path[key] {
				issues = append(issues, Issue{Kind: IssueCycle, Element: key, Detail: "element is its own ancestor"})
				return
			}
			if reached[key] {
				return
			}
			reached[key] = true
			el, ok := Lookup(tree, key)
			if !ok {
				return
			}
			path[key] = true
			for _, child := range el.Children {
				walk(child, path)
			}
			delete(path, key)
		}
		walk(root, map[string]bool{})
		var orphans []string
		for _, key := range elements.Keys() {
			if !reached[key] {
				orphans = append(orphans, key)
			}
		}
		sort.Strings(orphans)
		for _, key := range orphans {
			issues = append(issues, Issue{Kind: IssueUnreachable, Element: key, Detail: "not reachable from root"})
		}
	}
	return issues
}
