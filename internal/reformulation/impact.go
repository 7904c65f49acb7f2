package reformulation

import (
	"strings"

	"github.com/glowstack/ingredient-cli/internal/catalog"
)

// activeKeywords flags ingredient names whose addition or removal changes what
// a product can be expected to do. Kept as data so dermatology review can
// extend the list without touching the assessment logic.
var activeKeywords = []string{
	"retinol", "retinal", "niacinamide", "vitamin c", "ascorbic",
	"hyaluronic", "salicylic", "glycolic",
}

// AssessImpact produces a short human-readable note on what a set of added
// and removed ingredients means for someone using the product.
func AssessImpact(added, removed []string) string {
	var notes []string

	if names := filterFragrance(removed); len(names) > 0 {
		notes = append(notes, "fragrance removed ("+strings.Join(names, ", ")+"): better suited for sensitive skin")
	}
	if names := filterFragrance(added); len(names) > 0 {
		notes = append(notes, "fragrance added ("+strings.Join(names, ", ")+"): may irritate sensitive skin")
	}
	if names := filterActive(added); len(names) > 0 {
		notes = append(notes, "active ingredient added ("+strings.Join(names, ", ")+"): efficacy profile may improve")
	}
	if names := filterActive(removed); len(names) > 0 {
		notes = append(notes, "active ingredient removed ("+strings.Join(names, ", ")+"): efficacy profile may weaken")
	}

	if len(notes) == 0 {
		return "minor formulation adjustment, no expected impact on performance"
	}
	return strings.Join(notes, "; ")
}

func filterFragrance(names []string) []string {
	var out []string
	for _, name := range names {
		if catalog.IsFragranceName(name) {
			out = append(out, name)
		}
	}
	return out
}

func filterActive(names []string) []string {
	var out []string
	for _, name := range names {
		n := catalog.Normalize(name)
		for _, kw := range activeKeywords {
			if strings.Contains(n, kw) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}
