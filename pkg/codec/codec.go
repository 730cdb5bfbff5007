// Package codec implements the wire-level primitives of the protocol:
// percent-encoding of tokens (preserving '/') and whitespace tokenization.
// It has no knowledge of command semantics.
package codec

import (
	"strings"
)

const upperhex = "0123456789ABCDEF"

// unreserved reports whether b may appear unescaped in an encoded token. The
// set matches RFC 3986 unreserved characters plus '/', which this protocol
// always preserves so that path tokens remain readable on the wire.
func unreserved(b byte) bool {
	switch {
	case 'A' <= b && b <= 'Z', 'a' <= b && b <= 'z', '0' <= b && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '~' || b == '/':
		return true
	}
	return false
}

// Encode percent-encodes s, preserving '/' and unreserved characters
// unescaped. It operates byte-wise so that arbitrary non-UTF-8 path bytes
// survive the round trip as well as valid UTF-8 ones.
func Encode(s string) string {
	var needsEscaping bool
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			needsEscaping = true
			break
		}
	}
	if !needsEscaping {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}
	return b.String()
}

// Decode reverses Encode. Malformed percent sequences (a trailing '%', or a
// '%' not followed by two hex digits) are passed through verbatim rather
// than treated as an error, since the protocol has no error reply frame for
// a decode failure (Malformed lines are simply skipped by the caller, not
// this package).
func Decode(s string) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' || !isHexPair(s, i+1) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
		i += 2
	}
	return b.String()
}

func isHexPair(s string, i int) bool {
	if i+1 >= len(s) {
		return false
	}
	return isHex(s[i]) && isHex(s[i+1])
}

func isHex(b byte) bool {
	return ('0' <= b && b <= '9') || ('a' <= b && b <= 'f') || ('A' <= b && b <= 'F')
}

func unhex(b byte) byte {
	switch {
	case '0' <= b && b <= '9':
		return b - '0'
	case 'a' <= b && b <= 'f':
		return b - 'a' + 10
	case 'A' <= b && b <= 'F':
		return b - 'A' + 10
	}
	return 0
}

// Tokenize splits a line on runs of space or tab, dropping empty tokens, and
// percent-decodes each surviving token.
func Tokenize(line string) []string {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t'
	})
	tokens := make([]string, len(fields))
	for i, f := range fields {
		tokens[i] = Decode(f)
	}
	return tokens
}

// Join percent-encodes each token and joins them with single spaces, the
// inverse operation used when building a response line.
func Join(tokens []string) string {
	encoded := make([]string, len(tokens))
	for i, t := range tokens {
		encoded[i] = Encode(t)
	}
	return strings.Join(encoded, " ")
}
