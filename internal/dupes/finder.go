// Package dupes ranks products in the same category by key-ingredient overlap
// with a target product, surfacing cheaper near-equivalents.
package dupes

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/glowstack/ingredient-cli/internal/catalog"
	"github.com/glowstack/ingredient-cli/internal/model"
)

// DefaultMaxDupes bounds the result list when the caller passes no limit.
const DefaultMaxDupes = 10

// positionBonus is added per shared key ingredient sitting at a similar rank
// in both labels; positionWindow is the allowed rank distance.
const (
	positionBonus  = 0.02
	positionWindow = 3
)

// keyFunctionalKeywords marks functions that make an ingredient matter for
// similarity. Fillers and preservatives stay out of the key set.
var keyFunctionalKeywords = []string{
	"humectant", "emollient", "antioxidant", "exfoliant", "brightening",
	"anti-aging", "soothing", "barrier repair", "moisturizing", "hydrating",
	"uv filter", "sunscreen", "retinoid", "vitamin", "acid", "peptide",
	"niacinamide", "ceramide", "hyaluronic",
}

// Store is the persistence slice the finder needs. All access is read-only.
type Store interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProductsByCategory(ctx context.Context, category string) ([]model.Product, error)
	GetLinksForProducts(ctx context.Context, productIDs []string) (map[string][]model.Link, error)
	GetIngredients(ctx context.Context, ids []string) ([]model.Ingredient, error)
}

// Finder scores dupe candidates.
type Finder struct {
	store Store
}

// NewFinder builds a Finder.
func NewFinder(store Store) *Finder {
	return &Finder{store: store}
}

// profile is one product's ingredient view for scoring.
type profile struct {
	product  model.Product
	full     map[string]bool
	key      map[string]bool
	position map[string]int
}

// scoring returns the set used for Jaccard: the key set, or the full set when
// no key ingredient is linked.
func (p *profile) scoring() map[string]bool {
	if len(p.key) > 0 {
		return p.key
	}
	return p.full
}

// FindDupes returns up to maxDupes products from the target's category whose
// key-ingredient overlap scores at or above minScore, ranked best first.
func (f *Finder) FindDupes(ctx context.Context, productID string, maxDupes int, minScore float64) ([]model.Dupe, error) {
	if maxDupes <= 0 {
		maxDupes = DefaultMaxDupes
	}

	target, err := f.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, eris.Wrap(err, "dupes: load target")
	}
	if target == nil {
		return nil, eris.Errorf("dupes: product %s not found", productID)
	}

	candidates, err := f.store.ListProductsByCategory(ctx, target.Category)
	if err != nil {
		return nil, eris.Wrap(err, "dupes: list category")
	}

	products := make([]model.Product, 0, len(candidates))
	ids := []string{target.ID}
	for _, p := range candidates {
		if p.ID == target.ID {
			continue
		}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if len(products) == 0 {
		return nil, nil
	}

	profiles, err := f.buildProfiles(ctx, append([]model.Product{*target}, products...), ids)
	if err != nil {
		return nil, err
	}

	targetProfile := profiles[target.ID]
	if targetProfile == nil || len(targetProfile.full) == 0 {
		return nil, eris.Errorf("dupes: product %s has no linked ingredients", productID)
	}

	ingredientNames, err := f.ingredientNames(ctx, profiles)
	if err != nil {
		return nil, err
	}

	// Scoring is pure and read-only, so candidates score in parallel.
	results := make([]*model.Dupe, len(products))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range products {
		g.Go(func() error {
			candidate := profiles[p.ID]
			if candidate == nil || len(candidate.full) == 0 {
				return nil
			}
			score := scorePair(targetProfile, candidate)
			if score < minScore {
				return nil
			}
			results[i] = buildDupe(targetProfile, candidate, score, ingredientNames)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dupes := make([]model.Dupe, 0, len(results))
	for _, d := range results {
		if d != nil {
			dupes = append(dupes, *d)
		}
	}

	sort.SliceStable(dupes, func(i, j int) bool {
		if dupes[i].Score != dupes[j].Score {
			return dupes[i].Score > dupes[j].Score
		}
		return dupes[i].SavingsPercent > dupes[j].SavingsPercent
	})
	if len(dupes) > maxDupes {
		dupes = dupes[:maxDupes]
	}
	return dupes, nil
}

func (f *Finder) buildProfiles(ctx context.Context, products []model.Product, ids []string) (map[string]*profile, error) {
	links, err := f.store.GetLinksForProducts(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "dupes: load links")
	}

	var ingredientIDs []string
	seen := make(map[string]bool)
	for _, productLinks := range links {
		for _, l := range productLinks {
			if !seen[l.IngredientID] {
				seen[l.IngredientID] = true
				ingredientIDs = append(ingredientIDs, l.IngredientID)
			}
		}
	}
	ingredients, err := f.store.GetIngredients(ctx, ingredientIDs)
	if err != nil {
		return nil, eris.Wrap(err, "dupes: load ingredients")
	}
	byID := make(map[string]model.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		byID[ing.ID] = ing
	}

	profiles := make(map[string]*profile, len(products))
	for _, p := range products {
		prof := &profile{
			product:  p,
			full:     make(map[string]bool),
			key:      make(map[string]bool),
			position: make(map[string]int),
		}
		for _, l := range links[p.ID] {
			prof.full[l.IngredientID] = true
			prof.position[l.IngredientID] = l.Position
			if ing, ok := byID[l.IngredientID]; ok && isKeyIngredient(ing) {
				prof.key[l.IngredientID] = true
			}
		}
		profiles[p.ID] = prof
	}
	return profiles, nil
}

func (f *Finder) ingredientNames(ctx context.Context, profiles map[string]*profile) (map[string]string, error) {
	var ids []string
	seen := make(map[string]bool)
	for _, prof := range profiles {
		for id := range prof.full {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	ingredients, err := f.store.GetIngredients(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "dupes: load names")
	}
	names := make(map[string]string, len(ingredients))
	for _, ing := range ingredients {
		names[ing.ID] = ing.DisplayName
	}
	return names, nil
}

// isKeyIngredient reports whether an ingredient belongs in the key set.
func isKeyIngredient(ing model.Ingredient) bool {
	if ing.IsActive {
		return true
	}
	for _, fn := range ing.Functions {
		f := catalog.Normalize(fn)
		for _, kw := range keyFunctionalKeywords {
			if strings.Contains(f, kw) {
				return true
			}
		}
	}
	return false
}

// scorePair computes Jaccard similarity on the scoring sets plus a position
// bonus per shared key ingredient at a similar label rank, capped at 1.
func scorePair(target, candidate *profile) float64 {
	a, b := target.scoring(), candidate.scoring()

	intersection := 0
	for id := range a {
		if b[id] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	score := float64(intersection) / float64(union)

	for id := range a {
		if !b[id] {
			continue
		}
		posT, okT := target.position[id]
		posC, okC := candidate.position[id]
		if okT && okC && abs(posT-posC) <= positionWindow {
			score += positionBonus
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func buildDupe(target, candidate *profile, score float64, names map[string]string) *model.Dupe {
	d := &model.Dupe{
		Product: candidate.product,
		Score:   score,
	}

	// Display lists come from the full sets, not the key sets.
	for id := range target.full {
		name := names[id]
		if candidate.full[id] {
			d.SharedIngredients = append(d.SharedIngredients, name)
		} else {
			d.UniqueIngredients = append(d.UniqueIngredients, name)
		}
	}
	sort.Strings(d.SharedIngredients)
	sort.Strings(d.UniqueIngredients)

	if target.product.PriceUSD > 0 && candidate.product.PriceUSD < target.product.PriceUSD {
		d.SavingsPercent = (target.product.PriceUSD - candidate.product.PriceUSD) / target.product.PriceUSD * 100
	}
	return d
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
