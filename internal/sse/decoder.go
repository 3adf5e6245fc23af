package sse

import (
	"strings"
	"unicode/utf8"
)

// Decoder turns byte chunks into text without splitting multi-byte
// characters: an incomplete trailing sequence is carried into the next
// chunk.
type Decoder struct {
	carry []byte
}

// Decode returns the complete text available after appending chunk.
func (d *Decoder) Decode(chunk []byte) string {
	if len(chunk) == 0 {
		return ""
	}
	buf := chunk
	if len(d.carry) > 0 {
		buf = append(d.carry, chunk...)
		d.carry = nil
	}
	cut := completePrefix(buf)
	if cut < len(buf) {
		d.carry = append([]byte(nil), buf[cut:]...)
	}
	return string(buf[:cut])
}

// Flush returns whatever is still buffered. Bytes that never formed a valid
// character are replaced with U+FFFD.
func (d *Decoder) Flush() string {
	if len(d.carry) == 0 {
		return ""
	}
	out := strings.ToValidUTF8(string(d.carry), "\ufffd")
	d.carry = nil
	return out
}

// Pending reports how many bytes are being held back.
func (d *Decoder) Pending() int { return len(d.carry) }

// completePrefix returns the length of buf without a trailing incomplete
// UTF-8 sequence.
func completePrefix(buf []byte) int {
	end := len(buf)
	for i := end - 1; i >= 0 && i >= end-utf8.UTFMax; i-- {
		if !utf8.RuneStart(buf[i]) {
			continue
		}
		if utf8.FullRune(buf[i:]) {
			return end
		}
		return i
	}
	return end
}
