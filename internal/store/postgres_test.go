package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowstack/ingredient-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresCreateIngredientNormalizesName(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO ingredients").
		WithArgs(pgxmock.AnyArg(), "Açaí Extract", "Euterpe Oleracea Fruit Extract",
			"acai extract", pgxmock.AnyArg(), false, false, 4, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.CreateIngredient(context.Background(), &model.Ingredient{
		DisplayName:       "Açaí Extract",
		INCIName:          "Euterpe Oleracea Fruit Extract",
		Functions:         []string{"antioxidant"},
		SafetyRating:      4,
		ComedogenicRating: 1,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetProductNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, brand, category, price_usd").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "brand", "category", "price_usd", "ingredients_raw"}))

	p, err := s.GetProduct(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFilterLinked(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT DISTINCT product_id FROM product_ingredients").
		WithArgs([]string{"p1", "p2", "p3"}).
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}).AddRow("p2"))

	linked, err := s.FilterLinked(context.Background(), []string{"p1", "p2", "p3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p2": true}, linked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListIngredients(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, display_name, inci_name, functions").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "display_name", "inci_name", "functions", "is_active",
			"is_fragrance", "safety_rating", "comedogenic_rating", "created_at",
		}).AddRow("i1", "Retinol", "Retinol", []byte(`["anti-aging"]`), true, false, 3, 1, now))

	out, err := s.ListIngredients(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Retinol", out[0].DisplayName)
	assert.Equal(t, []string{"anti-aging"}, out[0].Functions)
	assert.True(t, out[0].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestVersion(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\)").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(3))

	v, err := s.LatestVersion(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertAlertsCountsNewRowsOnly(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(pgxmock.AnyArg(), "u1", "p1", "c1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(pgxmock.AnyArg(), "u2", "p1", "c1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	n, err := s.InsertAlerts(context.Background(), []model.Alert{
		{UserID: "u1", ProductID: "p1", ChangeID: "c1"},
		{UserID: "u2", ProductID: "p1", ChangeID: "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresActiveWatcherIDs(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT user_id FROM routines").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow("u2"))

	users, err := s.ActiveWatcherIDs(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}
