package model

import "time"

// Ingredient is the canonical, deduplicated catalog record that all product
// links point at. Identity is the normalized display/INCI name; once widely
// linked a row is immutable except for rating corrections.
type Ingredient struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"display_name"`
	INCIName          string    `json:"inci_name"`
	Functions         []string  `json:"functions"`
	IsActive          bool      `json:"is_active"`
	IsFragrance       bool      `json:"is_fragrance"`
	SafetyRating      int       `json:"safety_rating"`      // 1 (concerning) .. 5 (benign)
	ComedogenicRating int       `json:"comedogenic_rating"` // 0 .. 5
	CreatedAt         time.Time `json:"created_at"`
}

// MatchType records how a parsed ingredient name was resolved.
type MatchType string

const (
	MatchTypeMatched MatchType = "matched"
	MatchTypeCreated MatchType = "created"
)

// Resolution is the outcome of resolving one parsed name against the catalog.
type Resolution struct {
	IngredientID string    `json:"ingredient_id"`
	MatchType    MatchType `json:"match_type"`
}
