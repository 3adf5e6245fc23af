// Package patch applies JSON-Patch style operations to UI tree snapshots.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/sanitize"
)

// Supported operation names. Append is a streaming extension that
// concatenates text onto an existing string.
const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
	OpAppend  = "append"
)

// Op is a single patch operation.
type Op struct {
	Op    string
	Path  string
	Value jsonval.Value
	// HasValue distinguishes an explicit null value from an absent one.
	HasValue bool
}

// Add builds an add operation.
func Add(path string, v jsonval.Value) Op {
	return Op{Op: OpAdd, Path: path, Value: v, HasValue: true}
}

// Replace builds a replace operation.
func Replace(path string, v jsonval.Value) Op {
	return Op{Op: OpReplace, Path: path, Value: v, HasValue: true}
}

// Remove builds a remove operation.
func Remove(path string) Op {
	return Op{Op: OpRemove, Path: path}
}

// Append builds an append operation.
func Append(path, text string) Op {
	return Op{Op: OpAppend, Path: path, Value: jsonval.String(text), HasValue: true}
}

// FromValue interprets a decoded JSON object as an operation. It reports
// false unless v is an object with string "op" and "path" members.
func FromValue(v jsonval.Value) (Op, bool) {
	if v.Kind() != jsonval.KindObject {
		return Op{}, false
	}
	name, ok := v.GetString("op")
	if !ok {
		return Op{}, false
	}
	path, ok := v.GetString("path")
	if !ok {
		return Op{}, false
	}
	op := Op{Op: name, Path: path}
	if val, ok := v.Get("value"); ok {
		op.Value = val
		op.HasValue = true
	}
	return op, true
}

// Sanitized returns a copy of op whose value has been passed through the
// text sanitizer. Remove operations and the path are never modified.
func (o Op) Sanitized() Op {
	if o.Op == OpRemove || !o.HasValue {
		return o
	}
	o.Value = sanitize.Value(o.Value)
	return o
}

// MarshalJSON encodes the operation in RFC 6902 form.
func (o Op) MarshalJSON() ([]byte, error) {
	members := []jsonval.Member{
		jsonval.Pair("op", jsonval.String(o.Op)),
		jsonval.Pair("path", jsonval.String(o.Path)),
	}
	if o.HasValue {
		members = append(members, jsonval.Pair("value", o.Value))
	}
	return jsonval.Object(members...).MarshalJSON()
}

// UnmarshalJSON decodes an RFC 6902 style object.
func (o *Op) UnmarshalJSON(data []byte) error {
	v, err := jsonval.Parse(data)
	if err != nil {
		return err
	}
	op, ok := FromValue(v)
	if !ok {
		return errors.New("patch: operation requires string op and path")
	}
	*o = op
	return nil
}

func (o Op) String() string {
	return fmt.Sprintf("%s %s", o.Op, o.Path)
}

var _ json.Marshaler = Op{}
