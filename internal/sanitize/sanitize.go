// Package sanitize strips the decorative emoji models like to prepend to UI
// text ("⚡ Performance" becomes "Performance").
package sanitize

import "github.com/oremus-labs/genui-bridge/internal/jsonval"

// String removes every leading emoji run that is followed by whitespace.
// Text that does not start with such a run is returned unchanged.
func String(s string) string {
	for s != "" {
		n := leadingEmojiToken(s)
		if n == 0 {
			break
		}
		s = s[n:]
	}
	return s
}

// Value sanitizes every string reachable from v. Objects keep their key order
// and arrays their length and order; numbers, booleans and null pass through.
func Value(v jsonval.Value) jsonval.Value {
	switch v.Kind() {
	case jsonval.KindString:
		s, _ := v.AsString()
		if clean := String(s); clean != s {
			return jsonval.String(clean)
		}
		return v
	case jsonval.KindArray, jsonval.KindObject:
		return v.Map(Value)
	default:
		return v
	}
}
