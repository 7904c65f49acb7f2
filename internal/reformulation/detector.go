// Package reformulation compares a product's stored formulation against a
// freshly scanned label, versions real changes, and fans out alerts to users
// who track the product.
package reformulation

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/glowstack/ingredient-cli/internal/catalog"
	"github.com/glowstack/ingredient-cli/internal/matcher"
	"github.com/glowstack/ingredient-cli/internal/model"
)

// DefaultNoiseGate is the change ratio below which a diff with no reordering
// is treated as OCR noise rather than a reformulation.
const DefaultNoiseGate = 0.05

// Store is the persistence slice the detector needs.
type Store interface {
	GetLinks(ctx context.Context, productID string) ([]model.Link, error)
	GetIngredients(ctx context.Context, ids []string) ([]model.Ingredient, error)
	LatestVersion(ctx context.Context, productID string) (int, error)
	CreateChange(ctx context.Context, change *model.FormulationChange) error
	ReplaceLinks(ctx context.Context, productID string, links []model.Link) error
	ActiveWatcherIDs(ctx context.Context, productID string) ([]string, error)
	InsertAlerts(ctx context.Context, alerts []model.Alert) (int64, error)
}

// Diff is the outcome of comparing stored and scanned formulations.
type Diff struct {
	Changed   bool
	Added     []string // scanned names absent from the stored list
	Removed   []string // stored names absent from the scanned list
	Reordered bool
	Scanned   []string // the scanned list, post-dedup, original casing
}

// Detector detects and records formulation changes.
type Detector struct {
	store     Store
	resolver  *matcher.Resolver
	noiseGate float64
}

// NewDetector builds a Detector. A non-positive noiseGate selects the default.
func NewDetector(store Store, resolver *matcher.Resolver, noiseGate float64) *Detector {
	if noiseGate <= 0 {
		noiseGate = DefaultNoiseGate
	}
	return &Detector{store: store, resolver: resolver, noiseGate: noiseGate}
}

// Detect diffs the scanned ingredient names against the product's stored
// link-derived list. A tiny diff with no reordering is gated as noise.
func (d *Detector) Detect(ctx context.Context, productID string, scanned []string) (*Diff, error) {
	stored, err := d.storedNames(ctx, productID)
	if err != nil {
		return nil, err
	}

	scannedClean := dedupNormalized(scanned)
	diff := &Diff{Scanned: scannedClean}

	storedSet := nameSet(stored)
	scannedSet := nameSet(scannedClean)

	for _, name := range scannedClean {
		if !storedSet[catalog.Normalize(name)] {
			diff.Added = append(diff.Added, name)
		}
	}
	for _, name := range stored {
		if !scannedSet[catalog.Normalize(name)] {
			diff.Removed = append(diff.Removed, name)
		}
	}

	diff.Reordered = sharedOrderDiffers(stored, scannedClean)

	denom := len(stored)
	if len(scannedClean) > denom {
		denom = len(scannedClean)
	}
	if denom == 0 {
		return diff, nil
	}

	ratio := float64(len(diff.Added)+len(diff.Removed)) / float64(denom)
	if ratio < d.noiseGate && !diff.Reordered {
		zap.L().Debug("formulation diff below noise gate",
			zap.String("product_id", productID),
			zap.Float64("ratio", ratio),
		)
		return diff, nil
	}
	diff.Changed = len(diff.Added) > 0 || len(diff.Removed) > 0 || diff.Reordered

	return diff, nil
}

// Record versions a detected change, supersedes the live link set with the
// scanned formulation, and alerts every user who actively tracks the product.
func (d *Detector) Record(ctx context.Context, productID string, diff *Diff, detectedBy string) (*model.FormulationChange, error) {
	if diff == nil || !diff.Changed {
		return nil, eris.New("reformulation: nothing to record")
	}

	prev, err := d.store.LatestVersion(ctx, productID)
	if err != nil {
		return nil, err
	}

	changeType := model.ChangeTypeReformulation
	if len(diff.Added) == 0 && len(diff.Removed) == 0 {
		changeType = model.ChangeTypeMinorTweak
	}

	change := &model.FormulationChange{
		ProductID:          productID,
		Version:            prev + 1,
		ChangeType:         changeType,
		IngredientsAdded:   diff.Added,
		IngredientsRemoved: diff.Removed,
		Reordered:          diff.Reordered,
		ChangeSummary:      summarize(diff),
		ImpactAssessment:   AssessImpact(diff.Added, diff.Removed),
		DetectedBy:         detectedBy,
	}
	if err := d.store.CreateChange(ctx, change); err != nil {
		return nil, err
	}

	if err := d.replaceLinks(ctx, productID, diff.Scanned); err != nil {
		return nil, err
	}

	if err := d.alertWatchers(ctx, productID, change.ID); err != nil {
		return nil, err
	}

	zap.L().Info("formulation change recorded",
		zap.String("product_id", productID),
		zap.Int("version", change.Version),
		zap.String("change_type", string(change.ChangeType)),
		zap.Int("added", len(diff.Added)),
		zap.Int("removed", len(diff.Removed)),
		zap.Bool("reordered", diff.Reordered),
	)
	return change, nil
}

func (d *Detector) storedNames(ctx context.Context, productID string) ([]string, error) {
	links, err := d.store.GetLinks(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.IngredientID)
	}
	ingredients, err := d.store.GetIngredients(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]string, len(ingredients))
	for _, ing := range ingredients {
		byID[ing.ID] = ing.DisplayName
	}

	// Links come back position-ordered; keep that order.
	names := make([]string, 0, len(links))
	for _, l := range links {
		if name, ok := byID[l.IngredientID]; ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (d *Detector) replaceLinks(ctx context.Context, productID string, scanned []string) error {
	links := make([]model.Link, 0, len(scanned))
	seen := make(map[string]bool, len(scanned))
	position := 0
	for _, name := range scanned {
		res, err := d.resolver.Resolve(ctx, name)
		if err != nil {
			return eris.Wrapf(err, "reformulation: resolve %q", name)
		}
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
	return d.store.ReplaceLinks(ctx, productID, links)
}

func (d *Detector) alertWatchers(ctx context.Context, productID, changeID string) error {
	users, err := d.store.ActiveWatcherIDs(ctx, productID)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	alerts := make([]model.Alert, 0, len(users))
	for _, userID := range users {
		alerts = append(alerts, model.Alert{
			UserID:    userID,
			ProductID: productID,
			ChangeID:  changeID,
		})
	}
	_, err = d.store.InsertAlerts(ctx, alerts)
	return err
}

// dedupNormalized drops blank and repeated names, keeping first occurrence
// order and original casing.
func dedupNormalized(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		key := catalog.Normalize(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[catalog.Normalize(name)] = true
	}
	return set
}

// sharedOrderDiffers reports whether the ingredients present in both lists
// appear in a different relative order. Fewer than three shared members is
// too little signal to call a reorder.
func sharedOrderDiffers(stored, scanned []string) bool {
	scannedSet := nameSet(scanned)

	var sharedStored []string
	for _, name := range stored {
		if key := catalog.Normalize(name); scannedSet[key] {
			sharedStored = append(sharedStored, key)
		}
	}
	if len(sharedStored) <= 2 {
		return false
	}

	storedSet := nameSet(stored)
	var sharedScanned []string
	for _, name := range scanned {
		if key := catalog.Normalize(name); storedSet[key] {
			sharedScanned = append(sharedScanned, key)
		}
	}

	return !strings.EqualFold(strings.Join(sharedStored, "|"), strings.Join(sharedScanned, "|"))
}

func summarize(diff *Diff) string {
	var parts []string
	if len(diff.Added) > 0 {
		parts = append(parts, "Added: "+strings.Join(diff.Added, ", "))
	}
	if len(diff.Removed) > 0 {
		parts = append(parts, "Removed: "+strings.Join(diff.Removed, ", "))
	}
	if diff.Reordered {
		parts = append(parts, "Ingredient order changed")
	}
	return strings.Join(parts, ". ")
}
