package matcher

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/glowstack/ingredient-cli/internal/catalog"
	"github.com/glowstack/ingredient-cli/internal/classify"
	"github.com/glowstack/ingredient-cli/internal/cost"
	"github.com/glowstack/ingredient-cli/internal/model"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, name string) (*classify.Draft, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*classify.Draft), args.Error(1)
}

type memCreator struct {
	created []model.Ingredient
	fail    error
}

func (c *memCreator) CreateIngredient(_ context.Context, ing *model.Ingredient) error {
	if c.fail != nil {
		return c.fail
	}
	ing.ID = "new-" + catalog.Normalize(ing.DisplayName)
	c.created = append(c.created, *ing)
	return nil
}

func warmCache(ings ...model.Ingredient) *catalog.Cache {
	c := catalog.NewCache()
	for _, ing := range ings {
		c.Insert(ing)
	}
	return c
}

func TestResolveExactMatch(t *testing.T) {
	cache := warmCache(model.Ingredient{ID: "i1", DisplayName: "Water", INCIName: "Aqua"})
	classifier := new(mockClassifier)
	tracker := cost.NewTracker()
	r := NewResolver(cache, classifier, &memCreator{}, tracker, 0)

	res, err := r.Resolve(context.Background(), "AQUA")
	require.NoError(t, err)
	assert.Equal(t, "i1", res.IngredientID)
	assert.Equal(t, model.MatchTypeMatched, res.MatchType)
	assert.Equal(t, 1, tracker.Summary().Matched)
	classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestResolveFuzzyMatch(t *testing.T) {
	cache := warmCache(model.Ingredient{ID: "i1", DisplayName: "Niacinamide", INCIName: "Niacinamide"})
	classifier := new(mockClassifier)
	r := NewResolver(cache, classifier, &memCreator{}, cost.NewTracker(), 0.88)

	// One-letter misspelling clears the threshold.
	res, err := r.Resolve(context.Background(), "Niacinimide")
	require.NoError(t, err)
	assert.Equal(t, "i1", res.IngredientID)
	assert.Equal(t, model.MatchTypeMatched, res.MatchType)
	classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestResolveFuzzyKeepsDistinctNamesApart(t *testing.T) {
	cache := warmCache(model.Ingredient{ID: "i1", DisplayName: "Tocopherol", INCIName: "Tocopherol"})
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Tocopheryl Acetate").Return(&classify.Draft{
		DisplayName:      "Tocopheryl Acetate",
		INCIName:         "Tocopheryl Acetate",
		Functions:        []string{"antioxidant"},
		SafetyRating:     5,
		EstimatedCostUSD: 0.001,
	}, nil)
	creator := &memCreator{}
	r := NewResolver(cache, classifier, creator, cost.NewTracker(), 0.88)

	res, err := r.Resolve(context.Background(), "Tocopheryl Acetate")
	require.NoError(t, err)
	assert.Equal(t, model.MatchTypeCreated, res.MatchType)
	require.Len(t, creator.created, 1)
}

func TestResolveCreatesUnknown(t *testing.T) {
	cache := warmCache()
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Bakuchiol").Return(&classify.Draft{
		DisplayName:       "Bakuchiol",
		INCIName:          "Bakuchiol",
		Functions:         []string{"retinoid alternative", "antioxidant"},
		SafetyRating:      4,
		ComedogenicRating: 1,
		EstimatedCostUSD:  0.0012,
	}, nil)
	creator := &memCreator{}
	tracker := cost.NewTracker()
	r := NewResolver(cache, classifier, creator, tracker, 0)

	res, err := r.Resolve(context.Background(), "Bakuchiol")
	require.NoError(t, err)
	assert.Equal(t, model.MatchTypeCreated, res.MatchType)
	assert.Equal(t, "new-bakuchiol", res.IngredientID)

	require.Len(t, creator.created, 1)
	assert.True(t, creator.created[0].IsActive)
	assert.False(t, creator.created[0].IsFragrance)

	sum := tracker.Summary()
	assert.Equal(t, 1, sum.Created)
	assert.InDelta(t, 0.0012, sum.EstimatedCostUSD, 1e-9)

	// Second mention of the same name hits the cache, no second classify call.
	res2, err := r.Resolve(context.Background(), "bakuchiol")
	require.NoError(t, err)
	assert.Equal(t, res.IngredientID, res2.IngredientID)
	assert.Equal(t, model.MatchTypeMatched, res2.MatchType)
	classifier.AssertNumberOfCalls(t, "Classify", 1)
}

func TestResolveCreatedFragranceFlag(t *testing.T) {
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Linalool").Return(&classify.Draft{
		DisplayName:  "Linalool",
		INCIName:     "Linalool",
		Functions:    []string{"masking"},
		SafetyRating: 3,
	}, nil)
	creator := &memCreator{}
	r := NewResolver(warmCache(), classifier, creator, cost.NewTracker(), 0)

	_, err := r.Resolve(context.Background(), "Linalool")
	require.NoError(t, err)
	require.Len(t, creator.created, 1)
	assert.True(t, creator.created[0].IsFragrance)
	assert.False(t, creator.created[0].IsActive)
}

func TestResolveClassifierCanonicalizesToExisting(t *testing.T) {
	cache := warmCache(model.Ingredient{ID: "i1", DisplayName: "Water", INCIName: "Aqua"})
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Eau").Return(&classify.Draft{
		DisplayName: "Water",
		INCIName:    "Aqua",
	}, nil)
	creator := &memCreator{}
	r := NewResolver(cache, classifier, creator, cost.NewTracker(), 0)

	res, err := r.Resolve(context.Background(), "Eau")
	require.NoError(t, err)
	assert.Equal(t, "i1", res.IngredientID)
	assert.Equal(t, model.MatchTypeMatched, res.MatchType)
	assert.Empty(t, creator.created)
}

func TestResolveClassifierFailure(t *testing.T) {
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Mysterium").Return(nil, eris.New("api down"))
	r := NewResolver(warmCache(), classifier, &memCreator{}, cost.NewTracker(), 0)

	_, err := r.Resolve(context.Background(), "Mysterium")
	assert.Error(t, err)
}

func TestResolveCreateFailure(t *testing.T) {
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Bakuchiol").Return(&classify.Draft{
		DisplayName: "Bakuchiol",
		INCIName:    "Bakuchiol",
	}, nil)
	creator := &memCreator{fail: eris.New("unique violation")}
	tracker := cost.NewTracker()
	r := NewResolver(warmCache(), classifier, creator, tracker, 0)

	_, err := r.Resolve(context.Background(), "Bakuchiol")
	assert.Error(t, err)
	assert.Equal(t, 0, tracker.Summary().Created)
}

func TestResolveEmptyName(t *testing.T) {
	r := NewResolver(warmCache(), new(mockClassifier), &memCreator{}, cost.NewTracker(), 0)
	_, err := r.Resolve(context.Background(), "")
	assert.Error(t, err)
}
