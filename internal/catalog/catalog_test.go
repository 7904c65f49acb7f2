package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowstack/ingredient-cli/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Water", "water"},
		{"  Sodium   Hyaluronate ", "sodium hyaluronate"},
		{"Açaí Extract", "acai extract"},
		{"NIACINAMIDE", "niacinamide"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

type stubLister struct {
	ingredients []model.Ingredient
}

func (s *stubLister) ListIngredients(_ context.Context) ([]model.Ingredient, error) {
	return s.ingredients, nil
}

func TestWarm_IndexesDisplayAndINCINames(t *testing.T) {
	lister := &stubLister{ingredients: []model.Ingredient{
		{ID: "ing-1", DisplayName: "Water", INCIName: "Aqua"},
		{ID: "ing-2", DisplayName: "Glycerin", INCIName: "Glycerin"},
	}}

	cache, err := Warm(context.Background(), lister)
	require.NoError(t, err)

	id, ok := cache.Lookup("water")
	assert.True(t, ok)
	assert.Equal(t, "ing-1", id)

	id, ok = cache.Lookup("AQUA")
	assert.True(t, ok)
	assert.Equal(t, "ing-1", id)

	assert.Equal(t, 3, cache.Size())
}

func TestCache_InsertVisibleToLaterLookups(t *testing.T) {
	cache := NewCache()

	_, ok := cache.Lookup("Retinol")
	assert.False(t, ok)

	cache.Insert(model.Ingredient{ID: "ing-9", DisplayName: "Retinol", INCIName: "Retinol"})

	id, ok := cache.Lookup("retinol")
	assert.True(t, ok)
	assert.Equal(t, "ing-9", id)
}

func TestIsFragranceName(t *testing.T) {
	assert.True(t, IsFragranceName("Fragrance"))
	assert.True(t, IsFragranceName("Parfum"))
	assert.True(t, IsFragranceName("Limonene"))
	assert.False(t, IsFragranceName("Glycerin"))
}

func TestIsActiveFunction(t *testing.T) {
	assert.True(t, IsActiveFunction([]string{"exfoliant"}))
	assert.True(t, IsActiveFunction([]string{"emollient", "UV filter"}))
	assert.False(t, IsActiveFunction([]string{"solvent"}))
	assert.False(t, IsActiveFunction(nil))
}
