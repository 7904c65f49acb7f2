package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/glowstack/ingredient-cli/internal/catalog"
	"github.com/glowstack/ingredient-cli/internal/db"
	"github.com/glowstack/ingredient-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations in the batch loop.
var preparedStatements = map[string]string{
	"insert_ingredient": `INSERT INTO ingredients (id, display_name, inci_name, normalized_name, functions, is_active, is_fragrance, safety_rating, comedogenic_rating, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"get_links":         `SELECT product_id, ingredient_id, position FROM product_ingredients WHERE product_id = $1 ORDER BY position`,
	"latest_version":    `SELECT COALESCE(MAX(version), 0) FROM formulation_history WHERE product_id = $1`,
	"get_product":       `SELECT id, name, brand, category, price_usd, COALESCE(ingredients_raw, '') FROM products WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ingredients (
	id                 TEXT PRIMARY KEY,
	display_name       TEXT NOT NULL,
	inci_name          TEXT NOT NULL,
	normalized_name    TEXT NOT NULL UNIQUE,
	functions          JSONB NOT NULL DEFAULT '[]',
	is_active          BOOLEAN NOT NULL DEFAULT false,
	is_fragrance       BOOLEAN NOT NULL DEFAULT false,
	safety_rating      INTEGER NOT NULL DEFAULT 3,
	comedogenic_rating INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	brand           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	price_usd       DOUBLE PRECISION NOT NULL DEFAULT 0,
	ingredients_raw TEXT
);

CREATE TABLE IF NOT EXISTS product_ingredients (
	product_id    TEXT NOT NULL REFERENCES products(id),
	ingredient_id TEXT NOT NULL REFERENCES ingredients(id),
	position      INTEGER NOT NULL,
	PRIMARY KEY (product_id, ingredient_id)
);

CREATE TABLE IF NOT EXISTS formulation_history (
	id                  TEXT PRIMARY KEY,
	product_id          TEXT NOT NULL REFERENCES products(id),
	version             INTEGER NOT NULL,
	change_type         TEXT NOT NULL,
	ingredients_added   JSONB NOT NULL DEFAULT '[]',
	ingredients_removed JSONB NOT NULL DEFAULT '[]',
	reordered           BOOLEAN NOT NULL DEFAULT false,
	change_summary      TEXT NOT NULL DEFAULT '',
	impact_assessment   TEXT NOT NULL DEFAULT '',
	detected_by         TEXT NOT NULL DEFAULT '',
	confirmed           BOOLEAN NOT NULL DEFAULT false,
	detected_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (product_id, version)
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	change_id  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, product_id, change_id)
);

CREATE TABLE IF NOT EXISTS routines (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS expiry_trackings (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT true
);

CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_pi_ingredient ON product_ingredients(ingredient_id);
CREATE INDEX IF NOT EXISTS idx_history_product ON formulation_history(product_id);
CREATE INDEX IF NOT EXISTS idx_routines_product ON routines(product_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_expiry_product ON expiry_trackings(product_id) WHERE is_active;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListIngredients(ctx context.Context) ([]model.Ingredient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, inci_name, functions, is_active, is_fragrance, safety_rating, comedogenic_rating, created_at FROM ingredients`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ingredients")
	}
	defer rows.Close()

	var out []model.Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ing)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ingredients iterate")
}

func (s *PostgresStore) CreateIngredient(ctx context.Context, ing *model.Ingredient) error {
	if ing.ID == "" {
		ing.ID = uuid.New().String()
	}
	if ing.CreatedAt.IsZero() {
		ing.CreatedAt = time.Now().UTC()
	}

	functionsJSON, err := json.Marshal(ing.Functions)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal functions")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingredients (id, display_name, inci_name, normalized_name, functions, is_active, is_fragrance, safety_rating, comedogenic_rating, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ing.ID, ing.DisplayName, ing.INCIName, catalog.Normalize(ing.DisplayName),
		functionsJSON, ing.IsActive, ing.IsFragrance,
		ing.SafetyRating, ing.ComedogenicRating, ing.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert ingredient %s", ing.DisplayName)
}

func (s *PostgresStore) GetIngredients(ctx context.Context, ids []string) ([]model.Ingredient, error) {
	var out []model.Ingredient
	for _, chunk := range db.Chunk(ids, db.ChunkSize) {
		rows, err := s.pool.Query(ctx,
			`SELECT id, display_name, inci_name, functions, is_active, is_fragrance, safety_rating, comedogenic_rating, created_at
			 FROM ingredients WHERE id = ANY($1)`,
			chunk,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: get ingredients")
		}
		for rows.Next() {
			ing, err := scanIngredient(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, *ing)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "postgres: get ingredients iterate")
		}
	}
	return out, nil
}

func scanIngredient(rows pgx.Row) (*model.Ingredient, error) {
	var ing model.Ingredient
	var functionsJSON []byte
	if err := rows.Scan(&ing.ID, &ing.DisplayName, &ing.INCIName, &functionsJSON,
		&ing.IsActive, &ing.IsFragrance, &ing.SafetyRating, &ing.ComedogenicRating, &ing.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan ingredient")
	}
	if len(functionsJSON) > 0 {
		if err := json.Unmarshal(functionsJSON, &ing.Functions); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal functions")
		}
	}
	return &ing, nil
}

func (s *PostgresStore) ListProductIDsWithLabels(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM products WHERE ingredients_raw IS NOT NULL AND ingredients_raw != '' ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list product ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list product ids iterate")
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, brand, category, price_usd, COALESCE(ingredients_raw, '') FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.PriceUSD, &p.IngredientsRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get product %s", id)
	}
	return &p, nil
}

func (s *PostgresStore) ListProductsByCategory(ctx context.Context, category string) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, brand, category, price_usd, COALESCE(ingredients_raw, '') FROM products WHERE category = $1`,
		category,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list products in %s", category)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.PriceUSD, &p.IngredientsRaw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

// FilterLinked reports which of the given product IDs already have link rows.
// Membership is checked with chunked ID-set queries so the cost scales with
// product count, never with link-row count.
func (s *PostgresStore) FilterLinked(ctx context.Context, productIDs []string) (map[string]bool, error) {
	linked := make(map[string]bool, len(productIDs))
	for _, chunk := range db.Chunk(productIDs, db.ChunkSize) {
		rows, err := s.pool.Query(ctx,
			`SELECT DISTINCT product_id FROM product_ingredients WHERE product_id = ANY($1)`,
			chunk,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: filter linked")
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "postgres: scan linked id")
			}
			linked[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "postgres: filter linked iterate")
		}
	}
	return linked, nil
}

// InsertLinks bulk-inserts link rows with conflict-ignore semantics: a
// duplicate (product_id, ingredient_id) is a benign no-op so re-runs are safe.
func (s *PostgresStore) InsertLinks(ctx context.Context, links []model.Link) (int64, error) {
	var total int64
	cfg := db.InsertIgnoreConfig{
		Table:        "product_ingredients",
		Columns:      []string{"product_id", "ingredient_id", "position"},
		ConflictKeys: []string{"product_id", "ingredient_id"},
	}

	for start := 0; start < len(links); start += db.ChunkSize {
		end := start + db.ChunkSize
		if end > len(links) {
			end = len(links)
		}
		rows := make([][]any, 0, end-start)
		for _, l := range links[start:end] {
			rows = append(rows, []any{l.ProductID, l.IngredientID, l.Position})
		}
		n, err := db.BulkInsertIgnore(ctx, s.pool, cfg, rows)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *PostgresStore) GetLinks(ctx context.Context, productID string) ([]model.Link, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, ingredient_id, position FROM product_ingredients WHERE product_id = $1 ORDER BY position`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get links %s", productID)
	}
	defer rows.Close()

	var out []model.Link
	for rows.Next() {
		var l model.Link
		if err := rows.Scan(&l.ProductID, &l.IngredientID, &l.Position); err != nil {
			return nil, eris.Wrap(err, "postgres: scan link")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get links iterate")
}

func (s *PostgresStore) GetLinksForProducts(ctx context.Context, productIDs []string) (map[string][]model.Link, error) {
	out := make(map[string][]model.Link, len(productIDs))
	for _, chunk := range db.Chunk(productIDs, db.ChunkSize) {
		rows, err := s.pool.Query(ctx,
			`SELECT product_id, ingredient_id, position FROM product_ingredients WHERE product_id = ANY($1) ORDER BY product_id, position`,
			chunk,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: get links for products")
		}
		for rows.Next() {
			var l model.Link
			if err := rows.Scan(&l.ProductID, &l.IngredientID, &l.Position); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "postgres: scan link")
			}
			out[l.ProductID] = append(out[l.ProductID], l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "postgres: get links for products iterate")
		}
	}
	return out, nil
}

// ReplaceLinks supersedes a product's live link set with the given links in
// one transaction. History rows keep the old formulation; the live set always
// reflects the most recent accepted scan.
func (s *PostgresStore) ReplaceLinks(ctx context.Context, productID string, links []model.Link) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace links begin")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM product_ingredients WHERE product_id = $1`, productID,
	); err != nil {
		return eris.Wrapf(err, "postgres: replace links delete %s", productID)
	}

	for _, l := range links {
		if _, err := tx.Exec(ctx,
			`INSERT INTO product_ingredients (product_id, ingredient_id, position) VALUES ($1, $2, $3)
			 ON CONFLICT (product_id, ingredient_id) DO NOTHING`,
			l.ProductID, l.IngredientID, l.Position,
		); err != nil {
			return eris.Wrapf(err, "postgres: replace links insert %s", productID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: replace links commit")
}

func (s *PostgresStore) LatestVersion(ctx context.Context, productID string) (int, error) {
	var version int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM formulation_history WHERE product_id = $1`,
		productID,
	).Scan(&version)
	return version, eris.Wrapf(err, "postgres: latest version %s", productID)
}

func (s *PostgresStore) CreateChange(ctx context.Context, change *model.FormulationChange) error {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	if change.DetectedAt.IsZero() {
		change.DetectedAt = time.Now().UTC()
	}

	addedJSON, err := json.Marshal(change.IngredientsAdded)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal added")
	}
	removedJSON, err := json.Marshal(change.IngredientsRemoved)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal removed")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO formulation_history
		 (id, product_id, version, change_type, ingredients_added, ingredients_removed, reordered, change_summary, impact_assessment, detected_by, confirmed, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		change.ID, change.ProductID, change.Version, string(change.ChangeType),
		addedJSON, removedJSON, change.Reordered,
		change.ChangeSummary, change.ImpactAssessment, change.DetectedBy,
		change.Confirmed, change.DetectedAt,
	)
	return eris.Wrapf(err, "postgres: insert change v%d for %s", change.Version, change.ProductID)
}

// ActiveWatcherIDs returns the distinct users who have the product in an
// active routine or active expiry tracking. UNION deduplicates across both
// sources.
func (s *PostgresStore) ActiveWatcherIDs(ctx context.Context, productID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM routines WHERE product_id = $1 AND is_active
		 UNION
		 SELECT user_id FROM expiry_trackings WHERE product_id = $1 AND is_active`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: active watchers %s", productID)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan watcher id")
		}
		users = append(users, id)
	}
	return users, eris.Wrap(rows.Err(), "postgres: active watchers iterate")
}

func (s *PostgresStore) InsertAlerts(ctx context.Context, alerts []model.Alert) (int64, error) {
	var total int64
	for i := range alerts {
		if alerts[i].ID == "" {
			alerts[i].ID = uuid.New().String()
		}
		if alerts[i].CreatedAt.IsZero() {
			alerts[i].CreatedAt = time.Now().UTC()
		}
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO alerts (id, user_id, product_id, change_id, created_at) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (user_id, product_id, change_id) DO NOTHING`,
			alerts[i].ID, alerts[i].UserID, alerts[i].ProductID, alerts[i].ChangeID, alerts[i].CreatedAt,
		)
		if err != nil {
			return total, eris.Wrap(err, "postgres: insert alert")
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.CatalogStats, error) {
	var stats model.CatalogStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM ingredients),
			(SELECT COUNT(*) FROM products WHERE ingredients_raw IS NOT NULL AND ingredients_raw != ''),
			(SELECT COUNT(DISTINCT product_id) FROM product_ingredients),
			(SELECT COUNT(*) FROM product_ingredients),
			(SELECT COUNT(*) FROM formulation_history),
			(SELECT COUNT(*) FROM alerts)`,
	).Scan(&stats.Ingredients, &stats.Products, &stats.LinkedProducts,
		&stats.Links, &stats.Changes, &stats.Alerts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	stats.UnlinkedProducts = stats.Products - stats.LinkedProducts
	if stats.UnlinkedProducts < 0 {
		stats.UnlinkedProducts = 0
	}
	return &stats, nil
}
