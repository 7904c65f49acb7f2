package catalog

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/glowstack/ingredient-cli/internal/model"
)

// Lister is the slice of the store the cache needs for warm-up.
type Lister interface {
	ListIngredients(ctx context.Context) ([]model.Ingredient, error)
}

// Cache is an in-memory normalized-name index over the canonical catalog.
// It is constructed once per batch run and passed by reference into the
// matcher; it is not safe for concurrent writers (single-writer-per-run).
type Cache struct {
	byName map[string]string // normalized name -> ingredient id
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{byName: make(map[string]string)}
}

// Warm loads the full canonical catalog into the cache. Both the display
// name and the INCI name index the same id, since labels use either.
func Warm(ctx context.Context, store Lister) (*Cache, error) {
	ingredients, err := store.ListIngredients(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: warm cache")
	}

	c := NewCache()
	for _, ing := range ingredients {
		c.index(ing.DisplayName, ing.ID)
		c.index(ing.INCIName, ing.ID)
	}

	zap.L().Info("ingredient cache warmed",
		zap.Int("ingredients", len(ingredients)),
		zap.Int("keys", len(c.byName)),
	)
	return c, nil
}

func (c *Cache) index(name, id string) {
	key := Normalize(name)
	if key == "" {
		return
	}
	// First writer wins; the catalog's uniqueness constraint means collisions
	// here are alternate names of the same record.
	if _, ok := c.byName[key]; !ok {
		c.byName[key] = id
	}
}

// Lookup returns the ingredient id for a name, if cached.
func (c *Cache) Lookup(name string) (string, bool) {
	id, ok := c.byName[Normalize(name)]
	return id, ok
}

// Insert registers a newly created ingredient so that every later lookup in
// the same run sees it. Creation and cache update form one atomic step from
// the matcher's perspective.
func (c *Cache) Insert(ing model.Ingredient) {
	c.index(ing.DisplayName, ing.ID)
	c.index(ing.INCIName, ing.ID)
}

// Size reports the number of distinct normalized keys.
func (c *Cache) Size() int {
	return len(c.byName)
}

// Each visits every (normalized name, id) pair. The fuzzy matcher uses this
// to scan candidates; callers must not mutate the cache during iteration.
func (c *Cache) Each(fn func(name, id string)) {
	for name, id := range c.byName {
		fn(name, id)
	}
}
