package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-openapi/jsonpointer"
	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/sanitize"
)

// Apply applies op to doc and returns the new document. On failure the
// original document is returned together with an *Error.
//
// Only the containers along the target path are copied; every other subtree
// is shared with doc, so consumers can compare references to find what
// changed. Missing intermediate locations are never created.
func Apply(doc jsonval.Value, op Op) (jsonval.Value, error) {
	tokens, err := parsePointer(op.Path)
	if err != nil {
		return doc, fail(op, err)
	}
	switch op.Op {
	case OpAdd, OpReplace, OpAppend:
		if !op.HasValue {
			return doc, fail(op, fmt.Errorf("%w: %s requires a value", ErrInvalidValue, op.Op))
		}
	case OpRemove:
	default:
		return doc, fail(op, fmt.Errorf("%w: %q", ErrUnsupportedOp, op.Op))
	}
	if op.Op != OpAppend {
		op = op.Sanitized()
	}

	if len(tokens) == 0 {
		switch op.Op {
		case OpAdd, OpReplace:
			return op.Value, nil
		case OpAppend:
			next, err := appendText(doc, op.Value)
			if err != nil {
				return doc, fail(op, err)
			}
			return next, nil
		default:
			return doc, fail(op, fmt.Errorf("%w: the document root cannot be removed", ErrInvalidPointer))
		}
	}

	next, err := update(doc, tokens, func(parent jsonval.Value, token string) (jsonval.Value, error) {
		return applyAt(parent, token, op)
	})
	if err != nil {
		return doc, fail(op, err)
	}
	return next, nil
}

// Resolve returns the value stored at path.
func Resolve(doc jsonval.Value, path string) (jsonval.Value, error) {
	tokens, err := parsePointer(path)
	if err != nil {
		return jsonval.Value{}, err
	}
	node := doc
	for _, token := range tokens {
		node, err = child(node, token)
		if err != nil {
			return jsonval.Value{}, err
		}
	}
	return node, nil
}

func parsePointer(path string) ([]string, error) {
	for i := 0; i < len(path); i++ {
		if path[i] != '~' {
			continue
		}
		if i+1 >= len(path) || (path[i+1] != '0' && path[i+1] != '1') {
			return nil, fmt.Errorf("%w: bad escape at offset %d", ErrInvalidPointer, i)
		}
	}
	ptr, err := jsonpointer.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPointer, err)
	}
	return ptr.DecodedTokens(), nil
}

func update(node jsonval.Value, tokens []string, leaf func(jsonval.Value, string) (jsonval.Value, error)) (jsonval.Value, error) {
	if len(tokens) == 1 {
		return leaf(node, tokens[0])
	}
	next, err := child(node, tokens[0])
	if err != nil {
		return jsonval.Value{}, err
	}
	updated, err := update(next, tokens[1:], leaf)
	if err != nil {
		return jsonval.Value{}, err
	}
	return setChild(node, tokens[0], updated)
}

func child(node jsonval.Value, token string) (jsonval.Value, error) {
	switch node.Kind() {
	case jsonval.KindObject:
		v, ok := node.Get(token)
		if !ok {
			return jsonval.Value{}, fmt.Errorf("%w: no member %q", ErrPathNotFound, token)
		}
		return v, nil
	case jsonval.KindArray:
		i, err := arrayIndex(token, node.Len(), false)
		if err != nil {
			return jsonval.Value{}, err
		}
		v, _ := node.Index(i)
		return v, nil
	default:
		return jsonval.Value{}, fmt.Errorf("%w: cannot descend into %s at %q", ErrPathNotFound, node.Kind(), token)
	}
}

func setChild(node jsonval.Value, token string, v jsonval.Value) (jsonval.Value, error) {
	switch node.Kind() {
	case jsonval.KindObject:
		next, _ := node.WithKey(token, v)
		return next, nil
	case jsonval.KindArray:
		i, err := arrayIndex(token, node.Len(), false)
		if err != nil {
			return jsonval.Value{}, err
		}
		next, _ := node.WithIndex(i, v)
		return next, nil
	default:
		return jsonval.Value{}, fmt.Errorf("%w: cannot descend into %s", ErrPathNotFound, node.Kind())
	}
}

func applyAt(parent jsonval.Value, token string, op Op) (jsonval.Value, error) {
	switch parent.Kind() {
	case jsonval.KindObject:
		return applyToObject(parent, token, op)
	case jsonval.KindArray:
		return applyToArray(parent, token, op)
	default:
		return jsonval.Value{}, fmt.Errorf("%w: parent of %q is a %s", ErrPathNotFound, token, parent.Kind())
	}
}

func applyToObject(obj jsonval.Value, key string, op Op) (jsonval.Value, error) {
	current, exists := obj.Get(key)
	switch op.Op {
	case OpAdd:
		next, _ := obj.WithKey(key, op.Value)
		return next, nil
	case OpReplace:
		if !exists {
			return jsonval.Value{}, fmt.Errorf("%w: no member %q", ErrPathNotFound, key)
		}
		next, _ := obj.WithKey(key, op.Value)
		return next, nil
	case OpRemove:
		next, ok := obj.WithoutKey(key)
		if !ok {
			return jsonval.Value{}, fmt.Errorf("%w: no member %q", ErrPathNotFound, key)
		}
		return next, nil
	case OpAppend:
		if !exists {
			return jsonval.Value{}, fmt.Errorf("%w: no member %q", ErrPathNotFound, key)
		}
		joined, err := appendText(current, op.Value)
		if err != nil {
			return jsonval.Value{}, err
		}
		next, _ := obj.WithKey(key, joined)
		return next, nil
	}
	return jsonval.Value{}, fmt.Errorf("%w: %q", ErrUnsupportedOp, op.Op)
}

func applyToArray(arr jsonval.Value, token string, op Op) (jsonval.Value, error) {
	i, err := arrayIndex(token, arr.Len(), op.Op == OpAdd)
	if err != nil {
		return jsonval.Value{}, err
	}
	switch op.Op {
	case OpAdd:
		next, _ := arr.InsertAt(i, op.Value)
		return next, nil
	case OpReplace:
		next, _ := arr.WithIndex(i, op.Value)
		return next, nil
	case OpRemove:
		next, _ := arr.RemoveAt(i)
		return next, nil
	case OpAppend:
		current, _ := arr.Index(i)
		joined, err := appendText(current, op.Value)
		if err != nil {
			return jsonval.Value{}, err
		}
		next, _ := arr.WithIndex(i, joined)
		return next, nil
	}
	return jsonval.Value{}, fmt.Errorf("%w: %q", ErrUnsupportedOp, op.Op)
}

// arrayIndex parses an RFC 6901 array token. "-" addresses the slot past the
// end and is only valid when inserting.
func arrayIndex(token string, length int, insert bool) (int, error) {
	if token == "-" {
		if insert {
			return length, nil
		}
		return 0, fmt.Errorf("%w: %q addresses no existing element", ErrPathNotFound, token)
	}
	if token == "" || (len(token) > 1 && token[0] == '0') || strings.TrimLeft(token, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q is not an array index", ErrInvalidPointer, token)
	}
	i, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an array index", ErrInvalidPointer, token)
	}
	limit := length - 1
	if insert {
		limit = length
	}
	if i > limit {
		return 0, fmt.Errorf("%w: index %d out of range (len %d)", ErrPathNotFound, i, length)
	}
	return i, nil
}

// appendText concatenates text onto an existing string. The whole result is
// sanitized, so an emoji prefix split across fragments is still stripped.
func appendText(current, fragment jsonval.Value) (jsonval.Value, error) {
	base, ok := current.AsString()
	if !ok {
		return jsonval.Value{}, fmt.Errorf("%w: append target is a %s", ErrInvalidValue, current.Kind())
	}
	text, ok := fragment.AsString()
	if !ok {
		return jsonval.Value{}, fmt.Errorf("%w: append value is a %s", ErrInvalidValue, fragment.Kind())
	}
	return jsonval.String(sanitize.String(base + text)), nil
}
