package patch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
)

const baseTree = `{"root":"page","elements":{"page":{"key":"page","type":"Card","props":{"title":"Stats"},"children":["title","chart"]},"title":{"key":"title","type":"Heading","props":{"children":"Old"},"children":[]},"chart":{"key":"chart","type":"Chart","props":{},"children":[]}}}`

func mustApply(t *testing.T, doc jsonval.Value, op Op) jsonval.Value {
	t.Helper()
	next, err := Apply(doc, op)
	if err != nil {
		t.Fatalf("Apply(%s): %v", op, err)
	}
	return next
}

func TestReplaceSanitizesValue(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(baseTree)
	op := Replace("/elements/title", jsonval.MustParse(`{"props":{"children":"⚡ Hi"}}`))
	next := mustApply(t, tree, op)

	got, err := Resolve(next, "/elements/title/props/children")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s, _ := got.AsString(); s != "Hi" {
		t.Fatalf("expected sanitized children, got %s", got)
	}
	if tree.String() != baseTree {
		t.Fatalf("original tree mutated")
	}
}

func TestReplaceMissingPathFails(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{"root":"","elements":{}}`)
	op := Replace("/elements/title", jsonval.MustParse(`{"props":{"children":"⚡ Hi"}}`))
	next, err := Apply(tree, op)
	if !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound, got %v", err)
	}
	if !jsonval.Same(next, tree) {
		t.Fatalf("expected the original tree back on failure")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Op != OpReplace || perr.Path != "/elements/title" {
		t.Fatalf("expected *Error with op and path, got %#v", err)
	}
}

func TestRemoveLeavesSiblings(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(baseTree)
	next := mustApply(t, tree, Remove("/elements/chart"))

	elements, _ := next.Get("elements")
	if elements.Has("chart") {
		t.Fatalf("expected chart to be removed")
	}
	before, _ := tree.Get("elements")
	for _, key := range []string{"page", "title"} {
		a, _ := before.Get(key)
		b, ok := elements.Get(key)
		if !ok {
			t.Fatalf("sibling %s missing after remove", key)
		}
		if !jsonval.Same(a, b) {
			t.Fatalf("sibling %s should be shared, not copied", key)
		}
	}
	if got := elements.Keys(); len(got) != 2 || got[0] != "page" || got[1] != "title" {
		t.Fatalf("unexpected remaining keys %v", got)
	}
}

func TestAddNeverCreatesIntermediates(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{"elements":{}}`)
	_, err := Apply(tree, Add("/elements/card/props/title", jsonval.String("x")))
	if !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound got %v", err)
	}
	next := mustApply(t, tree, Add("/elements/card", jsonval.MustParse(`{"type":"Card"}`)))
	if next.String() != `{"elements":{"card":{"type":"Card"}}}` {
		t.Fatalf("unexpected tree %s", next)
	}
}

func TestAddOverwritesExistingKeyInPlace(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{"a":1,"b":2,"c":3}`)
	next := mustApply(t, tree, Add("/b", jsonval.String("two")))
	if next.String() != `{"a":1,"b":"two","c":3}` {
		t.Fatalf("unexpected tree %s", next)
	}
}

func TestArrayOperations(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{"children":["a","c"]}`)
	tree = mustApply(t, tree, Add("/children/1", jsonval.String("b")))
	tree = mustApply(t, tree, Add("/children/-", jsonval.String("d")))
	if got, _ := tree.Get("children"); got.String() != `["a","b","c","d"]` {
		t.Fatalf("unexpected children %s", got)
	}
	tree = mustApply(t, tree, Replace("/children/0", jsonval.String("A")))
	tree = mustApply(t, tree, Remove("/children/3"))
	if got, _ := tree.Get("children"); got.String() != `["A","b","c"]` {
		t.Fatalf("unexpected children %s", got)
	}

	cases := []struct {
		op   Op
		want error
	}{
		{Replace("/children/3", jsonval.String("x")), ErrPathNotFound},
		{Remove("/children/-"), ErrPathNotFound},
		{Add("/children/9", jsonval.String("x")), ErrPathNotFound},
		{Add("/children/01", jsonval.String("x")), ErrInvalidPointer},
		{Remove("/children/x"), ErrInvalidPointer},
	}
	for _, tc := range cases {
		if _, err := Apply(tree, tc.op); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v got %v", tc.op, tc.want, err)
		}
	}
}

func TestPointerSyntax(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{"a/b":{"m~n":1}}`)
	got, err := Resolve(tree, "/a~1b/m~0n")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if lit, _ := got.NumberLiteral(); lit != "1" {
		t.Fatalf("unexpected value %s", got)
	}

	for _, path := range []string{"a/b", "/a~2b", "/a~"} {
		if _, err := Apply(tree, Remove(path)); !errors.Is(err, ErrInvalidPointer) {
			t.Fatalf("%q: expected ErrInvalidPointer got %v", path, err)
		}
	}
}

func TestRootOperations(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{"a":1}`)
	next := mustApply(t, tree, Replace("", jsonval.MustParse(`{"title":"🎉 Done"}`)))
	if next.String() != `{"title":"Done"}` {
		t.Fatalf("unexpected root replacement %s", next)
	}
	if _, err := Apply(tree, Remove("")); !errors.Is(err, ErrInvalidPointer) {
		t.Fatalf("expected root removal to fail, got %v", err)
	}
}

func TestUnsupportedAndMissingValue(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{"a":1}`)
	if _, err := Apply(tree, Op{Op: "move", Path: "/a"}); !errors.Is(err, ErrUnsupportedOp) {
		t.Fatalf("expected ErrUnsupportedOp got %v", err)
	}
	if _, err := Apply(tree, Op{Op: OpAdd, Path: "/b"}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue got %v", err)
	}
	next := mustApply(t, tree, Op{Op: OpAdd, Path: "/b", HasValue: true})
	if next.String() != `{"a":1,"b":null}` {
		t.Fatalf("explicit null should be written, got %s", next)
	}
}

func TestAppendSanitizesAcrossFragments(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{"title":""}`)
	tree = mustApply(t, tree, Append("/title", "⚡"))
	tree = mustApply(t, tree, Append("/title", " Fast"))
	tree = mustApply(t, tree, Append("/title", " 🚀 path"))
	if got, _ := tree.GetString("title"); got != "Fast 🚀 path" {
		t.Fatalf("unexpected title %q", got)
	}
	if _, err := Apply(tree, Append("/missing", "x")); !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound got %v", err)
	}
	num := jsonval.MustParse(`{"n":1}`)
	if _, err := Apply(num, Append("/n", "x")); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue got %v", err)
	}
}

func TestStructuralSharing(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(baseTree)
	next := mustApply(t, tree, Replace("/elements/title/props/children", jsonval.String("New")))

	if jsonval.Same(tree, next) {
		t.Fatalf("root must change")
	}
	oldEls, _ := tree.Get("elements")
	newEls, _ := next.Get("elements")
	if jsonval.Same(oldEls, newEls) {
		t.Fatalf("elements container must change")
	}
	oldTitle, _ := oldEls.Get("title")
	newTitle, _ := newEls.Get("title")
	if jsonval.Same(oldTitle, newTitle) {
		t.Fatalf("mutated element must change")
	}
	oldChart, _ := oldEls.Get("chart")
	newChart, _ := newEls.Get("chart")
	if !jsonval.Same(oldChart, newChart) {
		t.Fatalf("untouched element must be shared")
	}
}

func TestApplierKeepsLastGoodSnapshot(t *testing.T) {
	t.Parallel()

	a := NewApplier(jsonval.MustParse(`{"root":"","elements":{}}`))
	if _, err := a.Apply(Add("/elements/a", jsonval.MustParse(`{"type":"Text"}`))); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	good := a.Tree()
	got, err := a.Apply(Replace("/elements/missing", jsonval.Null()))
	if err == nil {
		t.Fatalf("expected failure")
	}
	if !jsonval.Same(got, good) || !jsonval.Same(a.Tree(), good) {
		t.Fatalf("expected last good snapshot to be retained")
	}
	if a.Applied() != 1 || a.Failed() != 1 || a.Version() != 1 {
		t.Fatalf("unexpected counters applied=%d failed=%d version=%d", a.Applied(), a.Failed(), a.Version())
	}
}

func TestOpJSON(t *testing.T) {
	t.Parallel()

	var op Op
	if err := json.Unmarshal([]byte(`{"op":"remove","path":"/a"}`), &op); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if op.Op != OpRemove || op.HasValue {
		t.Fatalf("unexpected op %+v", op)
	}
	raw, err := json.Marshal(Add("/a", jsonval.MustParse(`{"x":1}`)))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `{"op":"add","path":"/a","value":{"x":1}}` {
		t.Fatalf("unexpected encoding %s", raw)
	}
	if err := json.Unmarshal([]byte(`{"path":"/a"}`), &op); err == nil {
		t.Fatalf("expected error for missing op")
	}
}

func TestSanitizedLeavesRemoveAndPath(t *testing.T) {
	t.Parallel()

	rm := Op{Op: OpRemove, Path: "/⚡ x", Value: jsonval.String("⚡ y"), HasValue: true}
	if got := rm.Sanitized(); got.Path != rm.Path || !jsonval.Same(got.Value, rm.Value) {
		t.Fatalf("remove must pass through unchanged: %+v", got)
	}
	add := Add("/⚡ x", jsonval.String("⚡ y"))
	got := add.Sanitized()
	if got.Path != "/⚡ x" {
		t.Fatalf("path must not be sanitized: %q", got.Path)
	}
	if s, _ := got.Value.AsString(); s != "y" {
		t.Fatalf("value must be sanitized: %q", s)
	}
	if s, _ := add.Value.AsString(); s != "⚡ y" {
		t.Fatalf("original op must not change")
	}
}
