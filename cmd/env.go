package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/glowstack/ingredient-cli/internal/catalog"
	"github.com/glowstack/ingredient-cli/internal/classify"
	"github.com/glowstack/ingredient-cli/internal/cost"
	"github.com/glowstack/ingredient-cli/internal/dupes"
	"github.com/glowstack/ingredient-cli/internal/linker"
	"github.com/glowstack/ingredient-cli/internal/matcher"
	"github.com/glowstack/ingredient-cli/internal/reformulation"
	"github.com/glowstack/ingredient-cli/internal/store"
	anthropicpkg "github.com/glowstack/ingredient-cli/pkg/anthropic"
)

// appEnv holds the store, warmed cache, and wired components shared by the
// link/scan/serve commands.
type appEnv struct {
	Store    store.Store
	Cache    *catalog.Cache
	Tracker  *cost.Tracker
	Resolver *matcher.Resolver
	Linker   *linker.Linker
	Detector *reformulation.Detector
	Finder   *dupes.Finder
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ingredients.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// costRates merges config pricing overrides over the built-in rate table.
func costRates() cost.Rates {
	rates := cost.DefaultRates()
	for model, p := range cfg.Pricing.Anthropic {
		rates.Anthropic[model] = cost.ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return rates
}

// initApp sets up the store, warms the ingredient cache, and wires the
// resolver, linker, detector, and finder. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	cache, err := catalog.Warm(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &appEnv{
		Store:   st,
		Cache:   cache,
		Tracker: cost.NewTracker(),
		Finder:  dupes.NewFinder(st),
	}

	if mode != "catalog" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		calc := cost.NewCalculator(costRates())
		classifier := classify.NewClaudeClassifier(client, calc, cfg.Anthropic.Model, cfg.Anthropic.RateLimit).
			WithMaxRetries(cfg.Anthropic.MaxRetries)

		env.Resolver = matcher.NewResolver(cache, classifier, st, env.Tracker, cfg.Matcher.FuzzyThreshold)
		env.Linker = linker.New(st, env.Resolver, env.Tracker)
		env.Detector = reformulation.NewDetector(st, env.Resolver, cfg.Reformulation.NoiseGate)
	}

	zap.L().Info("environment initialized",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("cached_names", cache.Size()),
	)
	return env, nil
}
