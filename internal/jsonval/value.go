// Package jsonval models LLM-provided JSON as a tagged variant with ordered
// objects, so trees can be patched, sanitized and re-encoded without losing
// key order.
package jsonval

import (
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Member is a single key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

type array struct {
	items []Value
}

type object struct {
	members []Member
}

// Value is an immutable JSON value. Containers are reference types: two
// Values share identity when they point at the same underlying container,
// which is how consumers detect changed subtrees.
type Value struct {
	kind Kind
	b    bool
	s    string // string contents or number literal
	arr  *array
	obj  *object
}

// Null returns the JSON null value. The zero Value is also null.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number wraps a JSON number literal. The literal is not validated.
func Number(literal string) Value { return Value{kind: KindNumber, s: literal} }

// Int wraps an integer.
func Int(n int64) Value { return Number(strconv.FormatInt(n, 10)) }

// Float wraps a float64.
func Float(f float64) Value { return Number(strconv.FormatFloat(f, 'g', -1, 64)) }

// Array builds a new array holding items.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: &array{items: cp}}
}

// Object builds a new object. Later duplicates of a key overwrite the value
// in the position of the first occurrence.
func Object(members ...Member) Value {
	obj := &object{members: make([]Member, 0, len(members))}
	for _, m := range members {
		if i := obj.index(m.Key); i >= 0 {
			obj.members[i].Value = m.Value
			continue
		}
		obj.members = append(obj.members, m)
	}
	return Value{kind: KindObject, obj: obj}
}

// Pair is shorthand for building object members.
func Pair(key string, v Value) Member { return Member{Key: key, Value: v} }

func (o *object) index(key string) int {
	for i := range o.members {
		if o.members[i].Key == key {
			return i
		}
	}
	return -1
}

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload when v is a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsBool returns the boolean payload when v is a boolean.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// NumberLiteral returns the number text when v is a number.
func (v Value) NumberLiteral() (string, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.s, true
}

// AsFloat parses the number literal.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Scalar renders strings, numbers and booleans as plain text. It reports
// false for null and containers.
func (v Value) Scalar() (string, bool) {
	switch v.kind {
	case KindString, KindNumber:
		return v.s, true
	case KindBool:
		return strconv.FormatBool(v.b), true
	default:
		return "", false
	}
}

// Len returns the number of members or items; zero for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr.items)
	case KindObject:
		return len(v.obj.members)
	default:
		return 0
	}
}

// Index returns the i-th array item.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr.items) {
		return Value{}, false
	}
	return v.arr.items[i], true
}

// Items returns a copy of the array items.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	out := make([]Value, len(v.arr.items))
	copy(out, v.arr.items)
	return out
}

// Get returns the member value stored under key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	if i := v.obj.index(key); i >= 0 {
		return v.obj.members[i].Value, true
	}
	return Value{}, false
}

// Has reports whether an object holds key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Keys returns object keys in order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, len(v.obj.members))
	for i, m := range v.obj.members {
		keys[i] = m.Key
	}
	return keys
}

// Members returns a copy of the object members in order.
func (v Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}
	out := make([]Member, len(v.obj.members))
	copy(out, v.obj.members)
	return out
}

// GetString is a convenience for reading a string member.
func (v Value) GetString(key string) (string, bool) {
	child, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return child.AsString()
}

// Same reports reference identity for containers and equality for scalars.
func Same(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindArray:
		return a.arr == b.arr
	case KindObject:
		return a.obj == b.obj
	default:
		return a.b == b.b && a.s == b.s
	}
}

// Equal reports deep structural equality. Object key order is significant.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber, KindString:
		return a.s == b.s
	case KindArray:
		if a.arr == b.arr {
			return true
		}
		if len(a.arr.items) != len(b.arr.items) {
			return false
		}
		for i := range a.arr.items {
			if !Equal(a.arr.items[i], b.arr.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj == b.obj {
			return true
		}
		if len(a.obj.members) != len(b.obj.members) {
			return false
		}
		for i := range a.obj.members {
			am, bm := a.obj.members[i], b.obj.members[i]
			if am.Key != bm.Key || !Equal(am.Value, bm.Value) {
				return false
			}
		}
		return true
	}
	return false
}
