// Package normalize implements the matching-key normalization the import
// pipeline uses to reconcile albums: Unicode NFKC, case-fold, collapse
// internal whitespace. This replaces the teacher's simpler
// lowercase+punctuation-strip NormalizeTitle, since album matching must
// be Unicode-aware rather than ASCII-punctuation-aware.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Key returns the normalized matching key for s: NFKC normal form, then
// simple case-folded (Unicode-aware lowercasing), then internal
// whitespace runs collapsed to a single space, with leading/trailing
// whitespace trimmed.
func Key(s string) string {
	folded := strings.ToLower(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(folded))
	inSpace := false
	for _, r := range folded {
		if unicode.IsSpace(r) {
			if !inSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
