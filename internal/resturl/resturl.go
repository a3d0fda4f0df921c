// Package resturl composes request URLs: base URL assembly, single-pass
// key escaping and ordered query-part appending.
package resturl

import (
	"strings"
)

// escapeByte reports whether c must be percent-encoded in a key or query
// value. Unreserved characters and the path separator pass through.
func escapeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	case c == '-' || c == '_' || c == '.' || c == '~' || c == '/':
		return false
	}
	return true
}

const upperhex = "0123456789ABCDEF"

// Escape percent-encodes s for use as a key path segment or a query
// value. The slash is preserved so keys keep their folder structure.
func Escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escapeByte(c) {
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xf])
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// BaseURL assembles scheme://host[:port][/services/Walrus]/ from the
// connection configuration. Port may be empty.
func BaseURL(host, port string, isHTTPS, isWalrus bool) string {
	var b strings.Builder
	if isHTTPS {
		b.WriteString("https://")
	} else {
		b.WriteString("http://")
	}
	b.WriteString(host)
	if port != "" {
		b.WriteByte(':')
		b.WriteString(port)
	}
	if isWalrus {
		b.WriteString("/services/Walrus")
	}
	b.WriteByte('/')
	return b.String()
}

// Builder accumulates a URL with ordered query parts. The first part is
// introduced with '?', every later one with '&'.
type Builder struct {
	b        strings.Builder
	hasQuery bool
}

// NewBuilder starts a URL from the given base.
func NewBuilder(base string) *Builder {
	u := &Builder{}
	u.b.WriteString(base)
	return u
}

// AppendRaw appends s without escaping. Used for bucket names and literal
// key suffixes such as "?uploads".
func (u *Builder) AppendRaw(s string) *Builder {
	if strings.ContainsRune(s, '?') {
		u.hasQuery = true
	}
	u.b.WriteString(s)
	return u
}

// AppendKey appends the object key, escaped once. A non-empty suffix is
// appended raw after the escaped key.
func (u *Builder) AppendKey(key, suffix string) *Builder {
	u.b.WriteString(Escape(key))
	if suffix != "" {
		u.AppendRaw(suffix)
	}
	return u
}

// AppendQuery appends one query part. The value is escaped, the name is
// not. Empty values are skipped entirely.
func (u *Builder) AppendQuery(name, value string) *Builder {
	if value == "" {
		return u
	}
	if u.hasQuery {
		u.b.WriteByte('&')
	} else {
		u.b.WriteByte('?')
		u.hasQuery = true
	}
	u.b.WriteString(name)
	u.b.WriteByte('=')
	u.b.WriteString(Escape(value))
	return u
}

// String returns the assembled URL.
func (u *Builder) String() string {
	return u.b.String()
}
