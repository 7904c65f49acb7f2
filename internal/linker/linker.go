// Package linker walks unlinked products and materializes their raw label
// text into product-ingredient link rows, batch by batch.
package linker

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/glowstack/ingredient-cli/internal/cost"
	"github.com/glowstack/ingredient-cli/internal/matcher"
	"github.com/glowstack/ingredient-cli/internal/model"
	"github.com/glowstack/ingredient-cli/internal/parser"
)

// DefaultBatchSize bounds one invocation. Callers loop on Remaining.
const DefaultBatchSize = 50

// MaxCapturedErrors caps the verbatim error list in a batch result.
const MaxCapturedErrors = 5

// Store is the persistence slice the linker needs.
type Store interface {
	ListProductIDsWithLabels(ctx context.Context) ([]string, error)
	FilterLinked(ctx context.Context, productIDs []string) (map[string]bool, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	InsertLinks(ctx context.Context, links []model.Link) (int64, error)
}

// Linker links one batch of products per call.
type Linker struct {
	store    Store
	resolver *matcher.Resolver
	tracker  *cost.Tracker
}

// New builds a Linker.
func New(store Store, resolver *matcher.Resolver, tracker *cost.Tracker) *Linker {
	return &Linker{store: store, resolver: resolver, tracker: tracker}
}

// LinkBatch processes up to batchSize unlinked products sequentially and
// reports counts plus how many unlinked products remain. A non-positive
// batchSize selects the default.
func (l *Linker) LinkBatch(ctx context.Context, batchSize int) (*model.LinkBatchResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	unlinked, err := l.unlinkedProducts(ctx)
	if err != nil {
		return nil, err
	}

	batch := unlinked
	if len(batch) > batchSize {
		batch = batch[:batchSize]
	}

	startCost := l.tracker.Summary()
	result := &model.LinkBatchResult{}

	for _, id := range batch {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "linker: batch canceled")
		}

		linked, err := l.linkProduct(ctx, id)
		switch {
		case err != nil:
			result.ProductsFailed++
			if len(result.Errors) < MaxCapturedErrors {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			}
			zap.L().Warn("product link failed", zap.String("product_id", id), zap.Error(err))
		case linked:
			result.ProductsLinked++
		default:
			result.ProductsSkipped++
		}
	}

	endCost := l.tracker.Summary()
	result.IngredientsCreated = endCost.Created - startCost.Created
	result.IngredientsMatched = endCost.Matched - startCost.Matched
	result.CostUSD = endCost.EstimatedCostUSD - startCost.EstimatedCostUSD
	result.Remaining = len(unlinked) - len(batch)

	zap.L().Info("link batch complete",
		zap.Int("linked", result.ProductsLinked),
		zap.Int("skipped", result.ProductsSkipped),
		zap.Int("failed", result.ProductsFailed),
		zap.Int("created", result.IngredientsCreated),
		zap.Int("matched", result.IngredientsMatched),
		zap.Float64("cost_usd", result.CostUSD),
		zap.Int("remaining", result.Remaining),
	)
	return result, nil
}

// unlinkedProducts computes (products with labels) minus (products with link
// rows). Membership runs as chunked ID-set queries so cost tracks product
// count, not link-row count.
func (l *Linker) unlinkedProducts(ctx context.Context) ([]string, error) {
	ids, err := l.store.ListProductIDsWithLabels(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "linker: list candidates")
	}

	linked, err := l.store.FilterLinked(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "linker: filter linked")
	}

	unlinked := make([]string, 0, len(ids))
	for _, id := range ids {
		if !linked[id] {
			unlinked = append(unlinked, id)
		}
	}
	return unlinked, nil
}

// linkProduct parses, resolves, and writes one product's link set. Returns
// false with nil error when the label parses to nothing (a skip, not a
// failure).
func (l *Linker) linkProduct(ctx context.Context, productID string) (bool, error) {
	product, err := l.store.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	if product == nil {
		return false, eris.Errorf("linker: product %s disappeared", productID)
	}

	mentions := parser.Parse(product.IngredientsRaw)
	if len(mentions) == 0 {
		return false, nil
	}

	seen := make(map[string]bool, len(mentions))
	links := make([]model.Link, 0, len(mentions))
	position := 0
	for _, m := range mentions {
		res, err := l.resolver.Resolve(ctx, m.Name)
		if err != nil {
			return false, err
		}
		// Dedup by canonical id, first occurrence keeps its position.
		if seen[res.IngredientID] {
			continue
		}
		seen[res.IngredientID] = true
		position++
		links = append(links, model.Link{
			ProductID:    productID,
			IngredientID: res.IngredientID,
			Position:     position,
		})
	}

	if _, err := l.store.InsertLinks(ctx, links); err != nil {
		return false, err
	}
	return true, nil
}
