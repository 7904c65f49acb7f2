// Package cost tracks the estimated spend of AI-assisted catalog growth.
package cost

// Summary is a read-only snapshot of accumulated spend. Matches are free;
// only created outcomes carry cost.
type Summary struct {
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	Created          int     `json:"created"`
	Matched          int     `json:"matched"`
}

// Tracker accumulates classification spend over a single run. A new tracker
// is constructed per invocation; there is no cross-run state. It follows the
// single-writer model of the run loop and needs no locking.
type Tracker struct {
	costUSD float64
	created int
	matched int
}

// NewTracker returns a zeroed tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordCreated adds the estimated cost of one created canonical ingredient.
func (t *Tracker) RecordCreated(costUSD float64) {
	t.created++
	t.costUSD += costUSD
}

// RecordMatched counts a free cache/fuzzy hit.
func (t *Tracker) RecordMatched() {
	t.matched++
}

// Summary returns the current totals.
func (t *Tracker) Summary() Summary {
	return Summary{
		EstimatedCostUSD: t.costUSD,
		Created:          t.created,
		Matched:          t.matched,
	}
}
