// Package matcher resolves parsed ingredient mentions against the canonical
// catalog, creating new catalog records for genuinely unknown names.
package matcher

import (
	"context"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/glowstack/ingredient-cli/internal/catalog"
	"github.com/glowstack/ingredient-cli/internal/classify"
	"github.com/glowstack/ingredient-cli/internal/cost"
	"github.com/glowstack/ingredient-cli/internal/model"
)

// DefaultFuzzyThreshold is the similarity floor for accepting a fuzzy match.
// High enough that "Tocopherol"/"Tocopheryl Acetate" stay distinct while
// trivial misspellings still land.
const DefaultFuzzyThreshold = 0.88

// Creator is the slice of the store the resolver needs.
type Creator interface {
	CreateIngredient(ctx context.Context, ing *model.Ingredient) error
}

// Resolver maps one ingredient mention to a catalog id: exact lookup first,
// then fuzzy, then AI classification as the path of last resort.
type Resolver struct {
	cache      *catalog.Cache
	classifier classify.Classifier
	store      Creator
	tracker    *cost.Tracker
	threshold  float64
}

// NewResolver builds a Resolver. A non-positive threshold selects the default.
func NewResolver(cache *catalog.Cache, classifier classify.Classifier, store Creator, tracker *cost.Tracker, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &Resolver{
		cache:      cache,
		classifier: classifier,
		store:      store,
		tracker:    tracker,
		threshold:  threshold,
	}
}

// Resolve returns the catalog id for a mention name. Within one run the same
// name always resolves to the same id: creation inserts into the cache before
// returning, so later mentions hit the exact path.
func (r *Resolver) Resolve(ctx context.Context, name string) (*model.Resolution, error) {
	if name == "" {
		return nil, eris.New("matcher: empty ingredient name")
	}

	// Tier 1: exact normalized lookup.
	if id, ok := r.cache.Lookup(name); ok {
		r.tracker.RecordMatched()
		return &model.Resolution{IngredientID: id, MatchType: model.MatchTypeMatched}, nil
	}

	// Tier 2: fuzzy scan over cached names.
	if id, ok := r.fuzzyMatch(name); ok {
		r.tracker.RecordMatched()
		return &model.Resolution{IngredientID: id, MatchType: model.MatchTypeMatched}, nil
	}

	// Tier 3: classify and create.
	return r.create(ctx, name)
}

// fuzzyMatch scans every cached name and keeps the best similarity at or
// above the threshold. Ties go to the first candidate seen.
func (r *Resolver) fuzzyMatch(name string) (string, bool) {
	target := catalog.Normalize(name)
	if target == "" {
		return "", false
	}

	var bestID string
	bestScore := r.threshold
	r.cache.Each(func(candidate, id string) {
		if score := levenshtein.Similarity(target, candidate, nil); score > bestScore {
			bestScore = score
			bestID = id
		}
	})
	return bestID, bestID != ""
}

func (r *Resolver) create(ctx context.Context, name string) (*model.Resolution, error) {
	draft, err := r.classifier.Classify(ctx, name)
	if err != nil {
		return nil, eris.Wrapf(err, "matcher: classify %q", name)
	}

	// The classifier may canonicalize to a name already in the catalog
	// (e.g. "Aqua" -> "Water"). Prefer the existing record over a duplicate.
	if id, ok := r.cache.Lookup(draft.DisplayName); ok {
		r.tracker.RecordMatched()
		return &model.Resolution{IngredientID: id, MatchType: model.MatchTypeMatched}, nil
	}
	if id, ok := r.cache.Lookup(draft.INCIName); ok {
		r.tracker.RecordMatched()
		return &model.Resolution{IngredientID: id, MatchType: model.MatchTypeMatched}, nil
	}

	ing := model.Ingredient{
		DisplayName:       draft.DisplayName,
		INCIName:          draft.INCIName,
		Functions:         draft.Functions,
		IsActive:          catalog.IsActiveFunction(draft.Functions),
		IsFragrance:       catalog.IsFragranceName(draft.DisplayName) || catalog.IsFragranceName(draft.INCIName),
		SafetyRating:      draft.SafetyRating,
		ComedogenicRating: draft.ComedogenicRating,
	}
	if err := r.store.CreateIngredient(ctx, &ing); err != nil {
		return nil, eris.Wrapf(err, "matcher: create ingredient %q", name)
	}

	// Cache before returning so creation is atomic from the caller's view.
	r.cache.Insert(ing)
	r.tracker.RecordCreated(draft.EstimatedCostUSD)

	zap.L().Debug("created ingredient",
		zap.String("name", ing.DisplayName),
		zap.String("inci", ing.INCIName),
		zap.String("id", ing.ID),
	)
	return &model.Resolution{IngredientID: ing.ID, MatchType: model.MatchTypeCreated}, nil
}
