// Package catalog holds the per-run ingredient cache and the name
// normalization rules that define canonical ingredient identity.
package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks so "Açaí" and "Acai" normalize to
// the same key.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize produces the identity key for an ingredient name: lowercased,
// whitespace-collapsed, diacritics-insensitive. Every map lookup, uniqueness
// constraint, and diff comparison in the core goes through this.
func Normalize(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}
