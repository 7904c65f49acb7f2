package model

// Product is a retail product record owned by the listing collaborator.
// This core only reads it; IngredientsRaw is the scraped label text.
type Product struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Brand          string  `json:"brand"`
	Category       string  `json:"category"`
	PriceUSD       float64 `json:"price_usd"`
	IngredientsRaw string  `json:"ingredients_raw"`
}

// Link ties a product to one canonical ingredient at a label position.
// A product never links the same ingredient twice; first occurrence wins.
type Link struct {
	ProductID    string `json:"product_id"`
	IngredientID string `json:"ingredient_id"`
	Position     int    `json:"position"` // 1-based label order
}

// Dupe is one ranked similarity candidate for a target product.
type Dupe struct {
	Product           Product  `json:"product"`
	Score             float64  `json:"score"`
	SharedIngredients []string `json:"shared_ingredients"`
	UniqueIngredients []string `json:"unique_ingredients"`
	SavingsPercent    float64  `json:"savings_percent"`
}
