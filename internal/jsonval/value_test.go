package jsonval

import (
	"encoding/json"
	"testing"
)

func TestParsePreservesKeyOrder(t *testing.T) {
	t.Parallel()

	v, err := ParseString(`{"zeta":1,"alpha":{"b":true,"a":null},"mid":[3,"x"]}`)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	keys := v.Keys()
	want := []string{"zeta", "alpha", "mid"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected key order %v got %v", want, keys)
		}
	}
	if got := v.String(); got != `{"zeta":1,"alpha":{"b":true,"a":null},"mid":[3,"x"]}` {
		t.Fatalf("unexpected encoding: %s", got)
	}
}

func TestParseKeepsNumberLiterals(t *testing.T) {
	t.Parallel()

	v := MustParse(`{"big":12345678901234567890,"f":1.50}`)
	big, _ := v.Get("big")
	if lit, _ := big.NumberLiteral(); lit != "12345678901234567890" {
		t.Fatalf("expected literal preserved, got %q", lit)
	}
	f, _ := v.Get("f")
	if lit, _ := f.NumberLiteral(); lit != "1.50" {
		t.Fatalf("expected 1.50, got %q", lit)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	if _, err := ParseString(`{"a":1} {"b":2}`); err == nil {
		t.Fatalf("expected trailing data error")
	}
	if _, err := ParseString(`{"a":`); err == nil {
		t.Fatalf("expected truncated input error")
	}
	if _, err := ParseString(``); err == nil {
		t.Fatalf("expected empty input error")
	}
}

func TestEditsDoNotMutateOriginal(t *testing.T) {
	t.Parallel()

	orig := MustParse(`{"a":1,"b":[1,2,3],"c":{"x":"y"}}`)
	next, ok := orig.WithKey("a", String("changed"))
	if !ok {
		t.Fatalf("WithKey failed")
	}
	if orig.String() != `{"a":1,"b":[1,2,3],"c":{"x":"y"}}` {
		t.Fatalf("original mutated: %s", orig)
	}
	if next.String() != `{"a":"changed","b":[1,2,3],"c":{"x":"y"}}` {
		t.Fatalf("unexpected result: %s", next)
	}
	ob, _ := orig.Get("b")
	nb, _ := next.Get("b")
	if !Same(ob, nb) {
		t.Fatalf("expected untouched subtree to be shared")
	}
	if Same(orig, next) {
		t.Fatalf("expected new root reference")
	}

	arr, _ := orig.Get("b")
	inserted, ok := arr.InsertAt(3, Int(4))
	if !ok || inserted.String() != "[1,2,3,4]" {
		t.Fatalf("InsertAt append: %s ok=%v", inserted, ok)
	}
	removed, ok := arr.RemoveAt(0)
	if !ok || removed.String() != "[2,3]" {
		t.Fatalf("RemoveAt: %s ok=%v", removed, ok)
	}
	if arr.String() != "[1,2,3]" {
		t.Fatalf("array mutated: %s", arr)
	}
	if _, ok := arr.InsertAt(5, Int(1)); ok {
		t.Fatalf("expected out of range insert to fail")
	}
}

func TestStringEscaping(t *testing.T) {
	t.Parallel()

	v := String("a\"b\\c\n<tag>\x01")
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back string
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("round trip through encoding/json failed: %v (%s)", err, raw)
	}
	if back != "a\"b\\c\n<tag>\x01" {
		t.Fatalf("unexpected decoded string %q", back)
	}
}

func TestFromGoSortsMapKeys(t *testing.T) {
	t.Parallel()

	v, err := FromGo(map[string]interface{}{"b": 1, "a": []interface{}{"x", true, nil}})
	if err != nil {
		t.Fatalf("FromGo: %v", err)
	}
	if got := v.String(); got != `{"a":["x",true,null],"b":1}` {
		t.Fatalf("unexpected encoding %s", got)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := MustParse(`{"a":[1,{"b":null}]}`)
	b := MustParse(`{"a":[1,{"b":null}]}`)
	c := MustParse(`{"a":[1,{"b":false}]}`)
	if !Equal(a, b) {
		t.Fatalf("expected equal values")
	}
	if Equal(a, c) {
		t.Fatalf("expected different values")
	}
	if Same(a, b) {
		t.Fatalf("separately parsed values must not share identity")
	}
}
