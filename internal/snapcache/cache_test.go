package snapcache

import (
	"context"
	"testing"
	"time"

	"github.com/oremus-labs/genui-bridge/internal/redisx"
)

func TestCacheWithoutClientIsNoop(t *testing.T) {
	t.Parallel()

	c := New(nil, "", time.Minute)
	if c.Enabled() {
		t.Fatalf("expected cache without client to be disabled")
	}
	ctx := context.Background()
	if err := c.Put(ctx, "s1", []byte(`{}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if data, ok, err := c.Get(ctx, "s1"); err != nil || ok || data != nil {
		t.Fatalf("expected miss, got %q %v %v", data, ok, err)
	}
	if err := c.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestKeyLayout(t *testing.T) {
	t.Parallel()

	c := New(nil, "", 0)
	if got := c.key("abc"); got != "genui:snapshot:abc" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := redisx.Key("tenant", "", "jobs"); got != "tenant:jobs" {
		t.Fatalf("unexpected key %q", got)
	}
}
