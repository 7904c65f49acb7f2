package model

import "time"

// ChangeType classifies a detected formulation change.
type ChangeType string

const (
	ChangeTypeReformulation ChangeType = "reformulation"
	ChangeTypePackaging     ChangeType = "packaging"
	ChangeTypeBoth          ChangeType = "both"
	ChangeTypeMinorTweak    ChangeType = "minor_tweak"
)

// FormulationChange is one versioned entry in a product's formulation
// history. Version numbers strictly increase per product and rows are never
// rewritten once persisted.
type FormulationChange struct {
	ID                 string     `json:"id"`
	ProductID          string     `json:"product_id"`
	Version            int        `json:"version"`
	ChangeType         ChangeType `json:"change_type"`
	IngredientsAdded   []string   `json:"ingredients_added"`
	IngredientsRemoved []string   `json:"ingredients_removed"`
	Reordered          bool       `json:"reordered"`
	ChangeSummary      string     `json:"change_summary"`
	ImpactAssessment   string     `json:"impact_assessment"`
	DetectedBy         string     `json:"detected_by"`
	Confirmed          bool       `json:"confirmed"`
	DetectedAt         time.Time  `json:"detected_at"`
}

// Alert is the fan-out record created once per affected user when a
// formulation change is versioned.
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	ChangeID  string    `json:"change_id"`
	CreatedAt time.Time `json:"created_at"`
}
