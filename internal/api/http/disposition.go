package http

import (
	"strings"
)

// ContentDisposition renders a Content-Disposition value carrying name in
// both the plain and the RFC 5987 parameter.
func ContentDisposition(disposition, name string) string {
	if disposition == "" {
		disposition = "attachment"
	}
	if name == "" {
		return disposition
	}
	enc := percentEncode(name)
	return disposition + `; filename="` + enc + `"; filename*=UTF-8''` + enc
}

const upperhex = "0123456789ABCDEF"

// percentEncode escapes every byte outside the RFC 5987 attr-char set.
func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
