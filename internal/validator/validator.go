// Package validator checks tree snapshots against the tree shape, the
// component registry and each component's prop schema.
package validator

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/registry"
	"github.com/oremus-labs/genui-bridge/internal/uitree"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

type Options struct {
	Registry *registry.Registry
	// TreeSchemaPath overrides the built-in tree shape schema.
	TreeSchemaPath string
	// Strict turns structural warnings (dangling children, unreachable
	// elements, unknown types) into failures. Leave it off for trees that
	// are still streaming.
	Strict bool
}

type Validator struct {
	registry   *registry.Registry
	treeSchema *gojsonschema.Schema
	strict     bool

	mu    sync.Mutex
	props map[string]*gojsonschema.Schema
}

type Result struct {
	Valid       bool          `json:"valid"`
	Errors      []string      `json:"errors,omitempty"`
	Checks      []CheckResult `json:"checks,omitempty"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

type CheckResult struct {
	Name     string            `json:"name"`
	Status   Status            `json:"status"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

const treeSchema = `{
  "type": "object",
  "required": ["root", "elements"],
  "properties": {
    "root": {"type": "string"},
    "elements": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "key": {"type": "string"},
          "type": {"type": "string"},
          "props": {"type": "object"},
          "children": {"type": "array", "items": {"type": "string"}},
          "visible": {"type": "boolean"}
        }
      }
    }
  }
}`

func New(opts Options) (*Validator, error) {
	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}
	loader := gojsonschema.NewStringLoader(treeSchema)
	if opts.TreeSchemaPath != "" {
		data, err := os.ReadFile(opts.TreeSchemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		loader = gojsonschema.NewBytesLoader(data)
	}
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to compile tree schema: %w", err)
	}
	return &Validator{
		registry:   reg,
		treeSchema: schema,
		strict:     opts.Strict,
		props:      map[string]*gojsonschema.Schema{},
	}, nil
}

// Validate never mutates tree.
func (v *Validator) Validate(tree jsonval.Value) Result {
	result := Result{Valid: true, GeneratedAt: time.Now()}

	raw, err := tree.MarshalJSON()
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("encode tree: %v", err))
		return result
	}
	schemaResult, err := v.treeSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("schema validation error: %v", err))
		return result
	} else if !schemaResult.Valid() {
		result.Valid = false
		for _, e := range schemaResult.Errors() {
			result.Errors = append(result.Errors, e.String())
		}
		result.Checks = append(result.Checks, CheckResult{Name: "tree-shape", Status: StatusFail, Message: "tree does not match the expected shape"})
		return result
	}
	result.Checks = append(result.Checks, CheckResult{Name: "tree-shape", Status: StatusPass, Message: "root and elements present"})

	result.Checks = append(result.Checks, v.checkStructure(tree))
	result.Checks = append(result.Checks, v.checkComponents(tree))
	props, errs := v.checkProps(tree)
	result.Checks = append(result.Checks, props)
	result.Errors = append(result.Errors, errs...)

	for _, c := range result.Checks {
		if c.Status == StatusFail {
			result.Valid = false
		}
	}
	return result
}

func (v *Validator) warnOrFail() Status {
	if v.strict {
		return StatusFail
	}
	return StatusWarn
}

func (v *Validator) checkStructure(tree jsonval.Value) CheckResult {
	issues := uitree.Check(tree)
	if len(issues) == 0 {
		return CheckResult{Name: "structure", Status: StatusPass, Message: "all references resolve"}
	}
	status := StatusPass
	meta := map[string]string{}
	for _, issue := range issues {
		severity := v.warnOrFail()
		switch issue.Kind {
		case uitree.IssueMalformed, uitree.IssueMissingElement, uitree.IssueCycle:
			severity = StatusFail
		}
		if severity == StatusFail || status == StatusPass {
			status = severity
		}
		key := string(issue.Kind)
		if issue.Element != "" {
			key = fmt.Sprintf("%s/%s", issue.Kind, issue.Element)
		}
		meta[key] = issue.Detail
	}
	return CheckResult{
		Name:     "structure",
		Status:   status,
		Message:  fmt.Sprintf("%d structural issue(s)", len(issues)),
		Metadata: meta,
	}
}

func (v *Validator) checkComponents(tree jsonval.Value) CheckResult {
	var unknown []string
	leafParents := map[string]string{}
	for _, el := range uitree.Elements(tree) {
		if el.Type == "" {
			continue
		}
		c, ok := v.registry.Lookup(el.Type)
		if !ok {
			unknown = append(unknown, el.Type)
			continue
		}
		if !c.Container && len(el.Children) > 0 {
			leafParents[el.Key] = el.Type
		}
	}
	if len(unknown) == 0 && len(leafParents) == 0 {
		return CheckResult{Name: "components", Status: StatusPass, Message: "all element types registered"}
	}
	sort.Strings(unknown)
	meta := map[string]string{}
	for _, typ := range unknown {
		meta["unknown/"+typ] = "rendered with fallback " + v.registry.Fallback().Name
	}
	for key, typ := range leafParents {
		meta["children/"+key] = typ + " does not take children"
	}
	return CheckResult{
		Name:     "components",
		Status:   v.warnOrFail(),
		Message:  fmt.Sprintf("%d unknown type(s), %d leaf element(s) with children", len(unknown), len(leafParents)),
		Metadata: meta,
	}
}

func (v *Validator) checkProps(tree jsonval.Value) (CheckResult, []string) {
	var errs []string
	checked := 0
	for _, el := range uitree.Elements(tree) {
		c, ok := v.registry.Lookup(el.Type)
		if !ok || len(c.Props) == 0 {
			continue
		}
		schema, err := v.propSchema(c)
		if err != nil {
			errs = append(errs, fmt.Sprintf("component %s: %v", c.Name, err))
			continue
		}
		props := el.Props
		if props.IsNull() {
			props = jsonval.Object()
		}
		raw, err := props.MarshalJSON()
		if err != nil {
			errs = append(errs, fmt.Sprintf("element %s: %v", el.Key, err))
			continue
		}
		res, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			errs = append(errs, fmt.Sprintf("element %s: %v", el.Key, err))
			continue
		}
		checked++
		for _, e := range res.Errors() {
			errs = append(errs, fmt.Sprintf("element %s (%s): %s", el.Key, el.Type, e.String()))
		}
	}
	if len(errs) > 0 {
		return CheckResult{
			Name:     "props",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d prop error(s)", len(errs)),
			Metadata: map[string]string{"checked": fmt.Sprintf("%d", checked)},
		}, errs
	}
	return CheckResult{
		Name:     "props",
		Status:   StatusPass,
		Message:  "props match component schemas",
		Metadata: map[string]string{"checked": fmt.Sprintf("%d", checked)},
	}, nil
}

func (v *Validator) propSchema(c registry.Component) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.props[c.Name]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(c.Props))
	if err != nil {
		return nil, err
	}
	v.props[c.Name] = s
	return s, nil
}
