// Package classify turns an unknown ingredient name into a structured draft
// catalog record via an AI capability. The capability is modeled as an
// interface so tests substitute a deterministic stub and production can swap
// providers without touching the matcher.
package classify

import "context"

// Classifier resolves an unknown ingredient name into a draft record.
// Implementations may fail or be slow; callers treat failure as a per-item
// error, never as fatal to the surrounding batch.
type Classifier interface {
	Classify(ctx context.Context, name string) (*Draft, error)
}

// Draft is a classification result for one ingredient name, ready to be
// inserted as a canonical catalog row.
type Draft struct {
	DisplayName       string   `json:"display_name"`
	INCIName          string   `json:"inci_name"`
	Functions         []string `json:"functions"`
	SafetyRating      int      `json:"safety_rating"`
	ComedogenicRating int      `json:"comedogenic_rating"`
	EstimatedCostUSD  float64  `json:"estimated_cost_usd"`
}
