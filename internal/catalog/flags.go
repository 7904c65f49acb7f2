package catalog

import "strings"

// fragranceTerms marks ingredient names that function as fragrance. Kept as
// data so the list grows without touching control flow.
var fragranceTerms = []string{
	"fragrance", "parfum", "perfume", "aroma",
	"linalool", "limonene", "citronellol", "geraniol", "eugenol",
}

// activeFunctions marks declared functions that make an ingredient an
// "active" rather than a filler.
var activeFunctions = []string{
	"active", "exfoliant", "retinoid", "antioxidant", "brightening",
	"anti-aging", "uv filter", "sunscreen", "peptide", "acne treatment",
}

// IsFragranceName reports whether a display or INCI name denotes fragrance.
func IsFragranceName(name string) bool {
	n := Normalize(name)
	for _, term := range fragranceTerms {
		if strings.Contains(n, term) {
			return true
		}
	}
	return false
}

// IsActiveFunction reports whether a declared function tag denotes an active.
func IsActiveFunction(functions []string) bool {
	for _, fn := range functions {
		f := Normalize(fn)
		for _, term := range activeFunctions {
			if strings.Contains(f, term) {
				return true
			}
		}
	}
	return false
}
