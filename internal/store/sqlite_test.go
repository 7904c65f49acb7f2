package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowstack/ingredient-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	// Single connection so every statement sees the same in-memory database.
	s.DB().SetMaxOpenConns(1)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProduct(t *testing.T, s *SQLiteStore, id, name, category string, price float64, raw string) {
	t.Helper()
	_, err := s.DB().Exec(
		`INSERT INTO products (id, name, brand, category, price_usd, ingredients_raw) VALUES (?, ?, '', ?, ?, ?)`,
		id, name, category, price, raw,
	)
	require.NoError(t, err)
}

func TestSQLiteIngredientRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ing := &model.Ingredient{
		DisplayName:       "Hyaluronic Acid",
		INCIName:          "Sodium Hyaluronate",
		Functions:         []string{"humectant", "hydrating"},
		IsActive:          true,
		SafetyRating:      5,
		ComedogenicRating: 0,
	}
	require.NoError(t, s.CreateIngredient(ctx, ing))
	assert.NotEmpty(t, ing.ID)

	all, err := s.ListIngredients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Hyaluronic Acid", all[0].DisplayName)
	assert.Equal(t, []string{"humectant", "hydrating"}, all[0].Functions)
	assert.True(t, all[0].IsActive)

	got, err := s.GetIngredients(ctx, []string{ing.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ing.ID, got[0].ID)
}

func TestSQLiteDuplicateNormalizedNameRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIngredient(ctx, &model.Ingredient{DisplayName: "Glycerin", INCIName: "Glycerin"}))
	err := s.CreateIngredient(ctx, &model.Ingredient{DisplayName: "GLYCERIN", INCIName: "Glycerin"})
	assert.Error(t, err)
}

func TestSQLiteProductQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, s, "p1", "Hydra Serum", "serum", 42, "Water, Glycerin")
	seedProduct(t, s, "p2", "Budget Serum", "serum", 12, "Aqua, Glycerin")
	_, err := s.DB().Exec(`INSERT INTO products (id, name, category, price_usd) VALUES ('p3', 'No Label', 'serum', 9)`)
	require.NoError(t, err)

	ids, err := s.ListProductIDsWithLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Hydra Serum", p.Name)
	assert.Equal(t, "Water, Glycerin", p.IngredientsRaw)

	missing, err := s.GetProduct(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	serums, err := s.ListProductsByCategory(ctx, "serum")
	require.NoError(t, err)
	assert.Len(t, serums, 3)
}

func TestSQLiteLinkLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, s, "p1", "Serum", "serum", 30, "Water")
	seedProduct(t, s, "p2", "Cream", "moisturizer", 25, "Water")
	water := &model.Ingredient{DisplayName: "Water", INCIName: "Aqua"}
	glycerin := &model.Ingredient{DisplayName: "Glycerin", INCIName: "Glycerin"}
	require.NoError(t, s.CreateIngredient(ctx, water))
	require.NoError(t, s.CreateIngredient(ctx, glycerin))

	n, err := s.InsertLinks(ctx, []model.Link{
		{ProductID: "p1", IngredientID: water.ID, Position: 1},
		{ProductID: "p1", IngredientID: glycerin.ID, Position: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Duplicate pair is ignored, not an error.
	n, err = s.InsertLinks(ctx, []model.Link{{ProductID: "p1", IngredientID: water.ID, Position: 9}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	linked, err := s.FilterLinked(ctx, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.True(t, linked["p1"])
	assert.False(t, linked["p2"])

	links, err := s.GetLinks(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, 1, links[0].Position)
	assert.Equal(t, water.ID, links[0].IngredientID)

	byProduct, err := s.GetLinksForProducts(ctx, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Len(t, byProduct["p1"], 2)
	assert.Empty(t, byProduct["p2"])

	require.NoError(t, s.ReplaceLinks(ctx, "p1", []model.Link{
		{ProductID: "p1", IngredientID: glycerin.ID, Position: 1},
	}))

	links, err = s.GetLinks(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, glycerin.ID, links[0].IngredientID)
}

func TestSQLiteFormulationHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, s, "p1", "Serum", "serum", 30, "Water")

	v, err := s.LatestVersion(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	change := &model.FormulationChange{
		ProductID:          "p1",
		Version:            1,
		ChangeType:         model.ChangeTypeReformulation,
		IngredientsAdded:   []string{"Retinol"},
		IngredientsRemoved: []string{"Fragrance"},
		ChangeSummary:      "2 ingredient changes detected",
		DetectedBy:         "scan",
	}
	require.NoError(t, s.CreateChange(ctx, change))
	assert.NotEmpty(t, change.ID)

	v, err = s.LatestVersion(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Same (product, version) pair must be rejected.
	dup := &model.FormulationChange{ProductID: "p1", Version: 1, ChangeType: model.ChangeTypeMinorTweak}
	assert.Error(t, s.CreateChange(ctx, dup))
}

func TestSQLiteWatchersAndAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, s, "p1", "Serum", "serum", 30, "Water")
	_, err := s.DB().Exec(`INSERT INTO routines (id, user_id, product_id, is_active) VALUES ('r1', 'u1', 'p1', 1)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO routines (id, user_id, product_id, is_active) VALUES ('r2', 'u2', 'p1', 0)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO expiry_trackings (id, user_id, product_id, is_active) VALUES ('e1', 'u1', 'p1', 1)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO expiry_trackings (id, user_id, product_id, is_active) VALUES ('e2', 'u3', 'p1', 1)`)
	require.NoError(t, err)

	users, err := s.ActiveWatcherIDs(ctx, "p1")
	require.NoError(t, err)
	// u1 watches twice but appears once; u2 is inactive.
	assert.ElementsMatch(t, []string{"u1", "u3"}, users)

	alerts := []model.Alert{
		{UserID: "u1", ProductID: "p1", ChangeID: "c1"},
		{UserID: "u3", ProductID: "p1", ChangeID: "c1"},
	}
	n, err := s.InsertAlerts(ctx, alerts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Re-delivery of the same alert set inserts nothing.
	n, err = s.InsertAlerts(ctx, []model.Alert{{UserID: "u1", ProductID: "p1", ChangeID: "c1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLiteStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, s, "p1", "Serum", "serum", 30, "Water")
	seedProduct(t, s, "p2", "Cream", "moisturizer", 25, "Water, Glycerin")
	water := &model.Ingredient{DisplayName: "Water", INCIName: "Aqua"}
	require.NoError(t, s.CreateIngredient(ctx, water))
	_, err := s.InsertLinks(ctx, []model.Link{{ProductID: "p1", IngredientID: water.ID, Position: 1}})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Ingredients)
	assert.Equal(t, 2, stats.Products)
	assert.Equal(t, 1, stats.LinkedProducts)
	assert.Equal(t, 1, stats.UnlinkedProducts)
	assert.Equal(t, 1, stats.Links)
	assert.Equal(t, 0, stats.Changes)
}
