package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/glowstack/ingredient-cli/internal/catalog"
	"github.com/glowstack/ingredient-cli/internal/db"
	"github.com/glowstack/ingredient-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and tests; the batch loop behaves identically on either store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := d.Exec(pragma); err != nil {
			d.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: d}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ingredients (
	id                 TEXT PRIMARY KEY,
	display_name       TEXT NOT NULL,
	inci_name          TEXT NOT NULL,
	normalized_name    TEXT NOT NULL UNIQUE,
	functions          TEXT NOT NULL DEFAULT '[]',
	is_active          INTEGER NOT NULL DEFAULT 0,
	is_fragrance       INTEGER NOT NULL DEFAULT 0,
	safety_rating      INTEGER NOT NULL DEFAULT 3,
	comedogenic_rating INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS products (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	brand           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	price_usd       REAL NOT NULL DEFAULT 0,
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
	ingredients_added   TEXT NOT NULL DEFAULT '[]',
	ingredients_removed TEXT NOT NULL DEFAULT '[]',
	reordered           INTEGER NOT NULL DEFAULT 0,
	change_summary      TEXT NOT NULL DEFAULT '',
	impact_assessment   TEXT NOT NULL DEFAULT '',
	detected_by         TEXT NOT NULL DEFAULT '',
	confirmed           INTEGER NOT NULL DEFAULT 0,
	detected_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (product_id, version)
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	change_id  TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (user_id, product_id, change_id)
);

CREATE TABLE IF NOT EXISTS routines (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS expiry_trackings (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_pi_ingredient ON product_ingredients(ingredient_id);
CREATE INDEX IF NOT EXISTS idx_history_product ON formulation_history(product_id);
CREATE INDEX IF NOT EXISTS idx_routines_product ON routines(product_id);
CREATE INDEX IF NOT EXISTS idx_expiry_product ON expiry_trackings(product_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for test fixtures.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) ListIngredients(ctx context.Context) ([]model.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, inci_name, functions, is_active, is_fragrance, safety_rating, comedogenic_rating, created_at FROM ingredients`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ingredients")
	}
	defer rows.Close()

	var out []model.Ingredient
	for rows.Next() {
		ing, err := scanSQLiteIngredient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ing)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ingredients iterate")
}

func (s *SQLiteStore) CreateIngredient(ctx context.Context, ing *model.Ingredient) error {
	if ing.ID == "" {
		ing.ID = uuid.New().String()
	}
	if ing.CreatedAt.IsZero() {
		ing.CreatedAt = time.Now().UTC()
	}

	functionsJSON, err := json.Marshal(ing.Functions)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal functions")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingredients (id, display_name, inci_name, normalized_name, functions, is_active, is_fragrance, safety_rating, comedogenic_rating, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ing.ID, ing.DisplayName, ing.INCIName, catalog.Normalize(ing.DisplayName),
		string(functionsJSON), ing.IsActive, ing.IsFragrance,
		ing.SafetyRating, ing.ComedogenicRating, ing.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert ingredient %s", ing.DisplayName)
}

func (s *SQLiteStore) GetIngredients(ctx context.Context, ids []string) ([]model.Ingredient, error) {
	var out []model.Ingredient
	for _, chunk := range db.Chunk(ids, db.ChunkSize) {
		query := `SELECT id, display_name, inci_name, functions, is_active, is_fragrance, safety_rating, comedogenic_rating, created_at
		          FROM ingredients WHERE id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, query, toAnySlice(chunk)...)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: get ingredients")
		}
		for rows.Next() {
			ing, err := scanSQLiteIngredient(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, *ing)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "sqlite: get ingredients iterate")
		}
	}
	return out, nil
}

func scanSQLiteIngredient(rows *sql.Rows) (*model.Ingredient, error) {
	var ing model.Ingredient
	var functionsJSON string
	if err := rows.Scan(&ing.ID, &ing.DisplayName, &ing.INCIName, &functionsJSON,
		&ing.IsActive, &ing.IsFragrance, &ing.SafetyRating, &ing.ComedogenicRating, &ing.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan ingredient")
	}
	if functionsJSON != "" {
		if err := json.Unmarshal([]byte(functionsJSON), &ing.Functions); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal functions")
		}
	}
	return &ing, nil
}

func (s *SQLiteStore) ListProductIDsWithLabels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM products WHERE ingredients_raw IS NOT NULL AND ingredients_raw != '' ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list product ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list product ids iterate")
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, brand, category, price_usd, COALESCE(ingredients_raw, '') FROM products WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.PriceUSD, &p.IngredientsRaw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get product %s", id)
	}
	return &p, nil
}

func (s *SQLiteStore) ListProductsByCategory(ctx context.Context, category string) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, brand, category, price_usd, COALESCE(ingredients_raw, '') FROM products WHERE category = ?`,
		category,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list products in %s", category)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.PriceUSD, &p.IngredientsRaw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) FilterLinked(ctx context.Context, productIDs []string) (map[string]bool, error) {
	linked := make(map[string]bool, len(productIDs))
	for _, chunk := range db.Chunk(productIDs, db.ChunkSize) {
		query := `SELECT DISTINCT product_id FROM product_ingredients WHERE product_id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, query, toAnySlice(chunk)...)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: filter linked")
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "sqlite: scan linked id")
			}
			linked[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "sqlite: filter linked iterate")
		}
	}
	return linked, nil
}

func (s *SQLiteStore) InsertLinks(ctx context.Context, links []model.Link) (int64, error) {
	var total int64
	for _, l := range links {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO product_ingredients (product_id, ingredient_id, position) VALUES (?, ?, ?)`,
			l.ProductID, l.IngredientID, l.Position,
		)
		if err != nil {
			return total, eris.Wrap(err, "sqlite: insert link")
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *SQLiteStore) GetLinks(ctx context.Context, productID string) ([]model.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, ingredient_id, position FROM product_ingredients WHERE product_id = ? ORDER BY position`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get links %s", productID)
	}
	defer rows.Close()

	var out []model.Link
	for rows.Next() {
		var l model.Link
		if err := rows.Scan(&l.ProductID, &l.IngredientID, &l.Position); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan link")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get links iterate")
}

func (s *SQLiteStore) GetLinksForProducts(ctx context.Context, productIDs []string) (map[string][]model.Link, error) {
	out := make(map[string][]model.Link, len(productIDs))
	for _, chunk := range db.Chunk(productIDs, db.ChunkSize) {
		query := `SELECT product_id, ingredient_id, position FROM product_ingredients
		          WHERE product_id IN (` + placeholders(len(chunk)) + `) ORDER BY product_id, position`
		rows, err := s.db.QueryContext(ctx, query, toAnySlice(chunk)...)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: get links for products")
		}
		for rows.Next() {
			var l model.Link
			if err := rows.Scan(&l.ProductID, &l.IngredientID, &l.Position); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "sqlite: scan link")
			}
			out[l.ProductID] = append(out[l.ProductID], l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "sqlite: get links for products iterate")
		}
	}
	return out, nil
}

func (s *SQLiteStore) ReplaceLinks(ctx context.Context, productID string, links []model.Link) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace links begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM product_ingredients WHERE product_id = ?`, productID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: replace links delete %s", productID)
	}

	for _, l := range links {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO product_ingredients (product_id, ingredient_id, position) VALUES (?, ?, ?)`,
			l.ProductID, l.IngredientID, l.Position,
		); err != nil {
			return eris.Wrapf(err, "sqlite: replace links insert %s", productID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: replace links commit")
}

func (s *SQLiteStore) LatestVersion(ctx context.Context, productID string) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM formulation_history WHERE product_id = ?`,
		productID,
	).Scan(&version)
	return version, eris.Wrapf(err, "sqlite: latest version %s", productID)
}

func (s *SQLiteStore) CreateChange(ctx context.Context, change *model.FormulationChange) error {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	if change.DetectedAt.IsZero() {
		change.DetectedAt = time.Now().UTC()
	}

	addedJSON, err := json.Marshal(change.IngredientsAdded)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal added")
	}
	removedJSON, err := json.Marshal(change.IngredientsRemoved)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal removed")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO formulation_history
		 (id, product_id, version, change_type, ingredients_added, ingredients_removed, reordered, change_summary, impact_assessment, detected_by, confirmed, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID, change.ProductID, change.Version, string(change.ChangeType),
		string(addedJSON), string(removedJSON), change.Reordered,
		change.ChangeSummary, change.ImpactAssessment, change.DetectedBy,
		change.Confirmed, change.DetectedAt,
	)
	return eris.Wrapf(err, "sqlite: insert change v%d for %s", change.Version, change.ProductID)
}

func (s *SQLiteStore) ActiveWatcherIDs(ctx context.Context, productID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM routines WHERE product_id = ? AND is_active = 1
		 UNION
		 SELECT user_id FROM expiry_trackings WHERE product_id = ? AND is_active = 1`,
		productID, productID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: active watchers %s", productID)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan watcher id")
		}
		users = append(users, id)
	}
	return users, eris.Wrap(rows.Err(), "sqlite: active watchers iterate")
}

func (s *SQLiteStore) InsertAlerts(ctx context.Context, alerts []model.Alert) (int64, error) {
	var total int64
	for i := range alerts {
		if alerts[i].ID == "" {
			alerts[i].ID = uuid.New().String()
		}
		if alerts[i].CreatedAt.IsZero() {
			alerts[i].CreatedAt = time.Now().UTC()
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO alerts (id, user_id, product_id, change_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			alerts[i].ID, alerts[i].UserID, alerts[i].ProductID, alerts[i].ChangeID, alerts[i].CreatedAt,
		)
		if err != nil {
			return total, eris.Wrap(err, "sqlite: insert alert")
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.CatalogStats, error) {
	var stats model.CatalogStats
	err := s.db.QueryRowContext(ctx, `
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
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	stats.UnlinkedProducts = stats.Products - stats.LinkedProducts
	if stats.UnlinkedProducts < 0 {
		stats.UnlinkedProducts = 0
	}
	return &stats, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
