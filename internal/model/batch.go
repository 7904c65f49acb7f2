package model

// LinkBatchResult summarizes one batch-link invocation. Remaining is the
// resumability contract shared by every batch-shaped operation: callers loop
// until it reaches zero.
type LinkBatchResult struct {
	ProductsLinked     int      `json:"products_linked"`
	ProductsSkipped    int      `json:"products_skipped"`
	ProductsFailed     int      `json:"products_failed"`
	IngredientsCreated int      `json:"ingredients_created"`
	IngredientsMatched int      `json:"ingredients_matched"`
	CostUSD            float64  `json:"cost_usd"`
	Remaining          int      `json:"remaining"`
	Errors             []string `json:"errors,omitempty"` // first N kept verbatim
}

// CatalogStats reports catalog and link-graph counts for status surfaces.
type CatalogStats struct {
	Ingredients      int `json:"ingredients"`
	Products         int `json:"products"`
	LinkedProducts   int `json:"linked_products"`
	UnlinkedProducts int `json:"unlinked_products"`
	Links            int `json:"links"`
	Changes          int `json:"changes"`
	Alerts           int `json:"alerts"`
}
