package export

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Replacement stands in for characters the PDF core fonts cannot encode.
const Replacement = '?'

// Sanitize degrades every rune outside Windows-1252 to Replacement. Invalid
// UTF-8 is replaced as well. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	if isSanitized(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if encodable(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(Replacement)
		}
	}
	return b.String()
}

func isSanitized(s string) bool {
	for _, r := range s {
		if !encodable(r) {
			return false
		}
	}
	return true
}

func encodable(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	if r < utf8.RuneSelf {
		return true
	}
	_, ok := charmap.Windows1252.EncodeRune(r)
	return ok
}
