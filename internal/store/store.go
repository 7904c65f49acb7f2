package store

import (
	"context"

	"github.com/glowstack/ingredient-cli/internal/model"
)

// Store defines the persistence interface for the ingredient intelligence
// core. Products are read-only; the catalog, link graph, formulation history,
// and alerts are owned here.
type Store interface {
	// Canonical catalog
	ListIngredients(ctx context.Context) ([]model.Ingredient, error)
	CreateIngredient(ctx context.Context, ing *model.Ingredient) error
	GetIngredients(ctx context.Context, ids []string) ([]model.Ingredient, error)

	// Products (read-only; owned by the listing collaborator)
	ListProductIDsWithLabels(ctx context.Context) ([]string, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProductsByCategory(ctx context.Context, category string) ([]model.Product, error)

	// Link graph
	FilterLinked(ctx context.Context, productIDs []string) (map[string]bool, error)
	InsertLinks(ctx context.Context, links []model.Link) (int64, error)
	GetLinks(ctx context.Context, productID string) ([]model.Link, error)
	GetLinksForProducts(ctx context.Context, productIDs []string) (map[string][]model.Link, error)
	ReplaceLinks(ctx context.Context, productID string, links []model.Link) error

	// Formulation history
	LatestVersion(ctx context.Context, productID string) (int, error)
	CreateChange(ctx context.Context, change *model.FormulationChange) error

	// Alert fan-out
	ActiveWatcherIDs(ctx context.Context, productID string) ([]string, error)
	InsertAlerts(ctx context.Context, alerts []model.Alert) (int64, error)

	// Status
	Stats(ctx context.Context) (*model.CatalogStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
