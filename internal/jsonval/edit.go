package jsonval

// The helpers below never touch the receiver. Each returns a new container
// that shares its unchanged children with the original.

// WithKey returns a copy of the object with key set to val. An existing key
// keeps its position; a new key is appended.
func (v Value) WithKey(key string, val Value) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	members := make([]Member, len(v.obj.members), len(v.obj.members)+1)
	copy(members, v.obj.members)
	if i := v.obj.index(key); i >= 0 {
		members[i].Value = val
	} else {
		members = append(members, Member{Key: key, Value: val})
	}
	return Value{kind: KindObject, obj: &object{members: members}}, true
}

// WithoutKey returns a copy of the object without key.
func (v Value) WithoutKey(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	i := v.obj.index(key)
	if i < 0 {
		return Value{}, false
	}
	members := make([]Member, 0, len(v.obj.members)-1)
	members = append(members, v.obj.members[:i]...)
	members = append(members, v.obj.members[i+1:]...)
	return Value{kind: KindObject, obj: &object{members: members}}, true
}

// WithIndex returns a copy of the array with item i replaced.
func (v Value) WithIndex(i int, val Value) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr.items) {
		return Value{}, false
	}
	items := make([]Value, len(v.arr.items))
	copy(items, v.arr.items)
	items[i] = val
	return Value{kind: KindArray, arr: &array{items: items}}, true
}

// InsertAt returns a copy of the array with val inserted before index i.
// i may equal the length to append.
func (v Value) InsertAt(i int, val Value) (Value, bool) {
	if v.kind != KindArray || i < 0 || i > len(v.arr.items) {
		return Value{}, false
	}
	items := make([]Value, 0, len(v.arr.items)+1)
	items = append(items, v.arr.items[:i]...)
	items = append(items, val)
	items = append(items, v.arr.items[i:]...)
	return Value{kind: KindArray, arr: &array{items: items}}, true
}

// RemoveAt returns a copy of the array without item i.
func (v Value) RemoveAt(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr.items) {
		return Value{}, false
	}
	items := make([]Value, 0, len(v.arr.items)-1)
	items = append(items, v.arr.items[:i]...)
	items = append(items, v.arr.items[i+1:]...)
	return Value{kind: KindArray, arr: &array{items: items}}, true
}

// Map returns a new container with fn applied to every child. Scalars are
// returned unchanged.
func (v Value) Map(fn func(Value) Value) Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr.items))
		for i, item := range v.arr.items {
			items[i] = fn(item)
		}
		return Value{kind: KindArray, arr: &array{items: items}}
	case KindObject:
		members := make([]Member, len(v.obj.members))
		for i, m := range v.obj.members {
			members[i] = Member{Key: m.Key, Value: fn(m.Value)}
		}
		return Value{kind: KindObject, obj: &object{members: members}}
	default:
		return v
	}
}
