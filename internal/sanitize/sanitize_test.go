package sanitize

import (
	"testing"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
)

func TestString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"single emoji", "⚡ Performance", "Performance"},
		{"repeated runs", "🚀 ✨ Launch", "Launch"},
		{"adjacent emoji", "🚀✨ Launch", "Launch"},
		{"variation selector", "❤️ Favorites", "Favorites"},
		{"zwj sequence", "👩‍💻 Developers", "Developers"},
		{"skin tone", "👍🏽 Approved", "Approved"},
		{"flag", "🇺🇸 United States", "United States"},
		{"keycap", "1️⃣ First step", "First step"},
		{"no trailing space kept", "⚡Fast", "⚡Fast"},
		{"lone emoji kept", "⚡", "⚡"},
		{"plain text", "Performance ⚡ boost", "Performance ⚡ boost"},
		{"text default symbol kept", "© 2024 Acme", "© 2024 Acme"},
		{"digit not keycap", "1 item", "1 item"},
		{"tab separator", "✅\tDone", "Done"},
		{"emoji then only space", "🔥 ", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := String(tc.in); got != tc.want {
				t.Fatalf("String(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValueScenario(t *testing.T) {
	t.Parallel()

	in := jsonval.MustParse(`{"props":{"title":"⚡ Performance"}}`)
	got := Value(in)
	if got.String() != `{"props":{"title":"Performance"}}` {
		t.Fatalf("unexpected sanitized value %s", got)
	}
	if in.String() != `{"props":{"title":"⚡ Performance"}}` {
		t.Fatalf("input was mutated: %s", in)
	}
}

func TestValuePreservesOrderAndScalars(t *testing.T) {
	t.Parallel()

	in := jsonval.MustParse(`{"z":"🎯 Goal","a":[1,"📈 Up",null,true,{"k":"✨ x"}],"m":2.50}`)
	got := Value(in)
	want := `{"z":"Goal","a":[1,"Up",null,true,{"k":"x"}],"m":2.50}`
	if got.String() != want {
		t.Fatalf("got %s want %s", got, want)
	}
	arr, _ := got.Get("a")
	if arr.Len() != 5 {
		t.Fatalf("expected array length 5 got %d", arr.Len())
	}
}

func TestValueIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`"🚀 🚀 Launch"`,
		`{"a":["⚡ ⚡","🔥 🔥 hot",{"b":"💡 idea 💡"}]}`,
		`[null,false,0,"",""]`,
		`"🔥 "`,
	}
	for _, raw := range inputs {
		v := jsonval.MustParse(raw)
		once := Value(v)
		twice := Value(once)
		if !jsonval.Equal(once, twice) {
			t.Fatalf("sanitize not idempotent for %s: %s vs %s", raw, once, twice)
		}
	}
}

func TestValueScalarsKeepIdentity(t *testing.T) {
	t.Parallel()

	s := jsonval.String("plain")
	if got := Value(s); !jsonval.Same(got, s) {
		t.Fatalf("expected untouched string to pass through")
	}
	n := jsonval.Int(7)
	if got := Value(n); !jsonval.Same(got, n) {
		t.Fatalf("expected number to pass through")
	}
}
