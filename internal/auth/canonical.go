// Package auth implements the COS request-signing scheme used by Tencent
// Cloud Object Storage. Every request carries an Authorization token derived
// from the method, path, query parameters and headers of that exact request.
package auth

import (
	"sort"
	"strings"

	"github.com/prn-tf/tencos/internal/domain"
)

// =============================================================================
// Canonical Form Construction
// =============================================================================

// CanonicalForm is the deterministic representation of a name/value map used
// as signing input. KeyList is the semicolon-joined list of lower-cased
// names; Encoded is the ampersand-joined k=v string with both sides
// percent-encoded.
type CanonicalForm struct {
	KeyList string
	Encoded string
}

// Canonicalize transforms a header or query map into its canonical form.
// Names are lower-cased, pairs are sorted lexicographically by the
// lower-cased name, and both name and value are percent-encoded. Two
// distinct names that collide after lower-casing are rejected: the remote
// verifier would see an ambiguous canonical string either way.
func Canonicalize(m map[string]string) (CanonicalForm, error) {
	if len(m) == 0 {
		return CanonicalForm{}, nil
	}

	type pair struct {
		lowerKey string
		value    string
	}

	pairs := make([]pair, 0, len(m))
	seen := make(map[string]struct{}, len(m))
	for k, v := range m {
		lk := strings.ToLower(k)
		if _, dup := seen[lk]; dup {
			return CanonicalForm{}, domain.ErrDuplicateSignedKey
		}
		seen[lk] = struct{}{}
		pairs = append(pairs, pair{lowerKey: lk, value: v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].lowerKey < pairs[j].lowerKey
	})

	keys := make([]string, len(pairs))
	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.lowerKey
		encoded[i] = percentEncode(p.lowerKey) + "=" + percentEncode(p.value)
	}

	return CanonicalForm{
		KeyList: strings.Join(keys, ";"),
		Encoded: strings.Join(encoded, "&"),
	}, nil
}

// percentEncode escapes everything outside the RFC 3986 unreserved set.
// url.QueryEscape is not usable here: it encodes space as "+" and leaves
// characters the remote verifier expects escaped.
func percentEncode(s string) string {
	const upperhex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

// isUnreserved reports membership in the RFC 3986 unreserved set.
func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}
