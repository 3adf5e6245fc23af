// Package openapi embeds the HTTP API description.
package openapi

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

//go:embed spec.yaml
var document []byte

// JSON returns the OpenAPI document serialized as JSON.
func JSON() ([]byte, error) {
	return yaml.YAMLToJSON(document)
}

// YAML returns the raw OpenAPI YAML document.
func YAML() []byte {
	return document
}

var methods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true, "head": true, "options": true,
}

// Routes lists the documented operations as "METHOD /path" using gin-style
// ":param" segments, sorted.
func Routes() ([]string, error) {
	var doc struct {
		Paths map[string]map[string]interface{} `json:"paths"`
	}
	if err := yaml.Unmarshal(document, &doc); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	var out []string
	for path, ops := range doc.Paths {
		for method := range ops {
			if !methods[method] {
				continue
			}
			out = append(out, strings.ToUpper(method)+" "+ginPath(path))
		}
	}
	sort.Strings(out)
	return out, nil
}

func ginPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			parts[i] = ":" + p[1:len(p)-1]
		}
	}
	return strings.Join(parts, "/")
}
