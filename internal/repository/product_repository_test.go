package repository

import (
	"context"
	"testing"

	"orderflow/internal/database/dbtest"
	"orderflow/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCatalogue(t *testing.T, pool *pgxpool.Pool) {
	dbtest.Seed(t, pool,
		dbtest.Product{ID: "10", Name: "Laptop", Price: "500000", Category: "Electronics", Stock: 5},
		dbtest.Product{ID: "20", Name: "Mouse", Price: "150000.50", Category: "Accessories", Stock: 0},
		dbtest.Product{ID: "30", Name: "Keyboard", Price: "300000", Category: "Accessories", Stock: 2},
	)
}

func TestProductRepository_GetByID(t *testing.T) {
	pool := dbtest.Start(t)
	seedCatalogue(t, pool)

	repo := NewProductRepository(pool, zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name          string
		productID     string
		expectNil     bool
		expectedName  string
		expectedStock int
		expectedAvail model.Availability
	}{
		{
			name:          "Existing product",
			productID:     "10",
			expectedName:  "Laptop",
			expectedStock: 5,
			expectedAvail: model.AvailabilityAvailable,
		},
		{
			name:          "Sold out product",
			productID:     "20",
			expectedName:  "Mouse",
			expectedStock: 0,
			expectedAvail: model.AvailabilitySold,
		},
		{
			name:      "Non-existent product",
			productID: "999",
			expectNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, err := repo.GetByID(ctx, tt.productID)

			require.NoError(t, err)
			if tt.expectNil {
				assert.Nil(t, product)
				return
			}
			require.NotNil(t, product)
			assert.Equal(t, tt.expectedName, product.Name)
			assert.Equal(t, tt.expectedStock, product.StockQuantity)
			assert.Equal(t, tt.expectedAvail, product.Availability)
			assert.False(t, product.CreatedAt.IsZero())
		})
	}
}

func TestProductRepository_GetByID_PreservesPricePrecision(t *testing.T) {
	pool := dbtest.Start(t)
	seedCatalogue(t, pool)

	repo := NewProductRepository(pool, zerolog.Nop())

	product, err := repo.GetByID(context.Background(), "20")

	require.NoError(t, err)
	assert.Equal(t, "150000.5", product.Price.String())
}

func TestProductRepository_GetByIDs(t *testing.T) {
	pool := dbtest.Start(t)
	seedCatalogue(t, pool)

	repo := NewProductRepository(pool, zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name        string
		ids         []string
		expectedIDs []string
	}{
		{name: "All found", ids: []string{"30", "10"}, expectedIDs: []string{"10", "30"}},
		{name: "Unknown IDs skipped", ids: []string{"10", "999"}, expectedIDs: []string{"10"}},
		{name: "Empty input", ids: []string{}, expectedIDs: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, err := repo.GetByIDs(ctx, tt.ids)

			require.NoError(t, err)
			ids := make([]string, 0, len(products))
			for _, p := range products {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.expectedIDs, ids)
		})
	}
}

func TestProductRepository_StockForUpdate(t *testing.T) {
	pool := dbtest.Start(t)
	seedCatalogue(t, pool)

	repo := NewProductRepository(pool, zerolog.Nop())
	ctx := context.Background()

	t.Run("reads and writes within a transaction", func(t *testing.T) {
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		level, err := repo.GetStockForUpdate(ctx, tx, "30")
		require.NoError(t, err)
		require.NotNil(t, level)
		assert.Equal(t, 2, level.Quantity)

		require.NoError(t, repo.SetStockAndAvailability(ctx, tx, "30", 0, model.AvailabilitySold))
		require.NoError(t, tx.Commit(ctx))

		product, err := repo.GetByID(ctx, "30")
		require.NoError(t, err)
		assert.Equal(t, 0, product.StockQuantity)
		assert.Equal(t, model.AvailabilitySold, product.Availability)
	})

	t.Run("missing product", func(t *testing.T) {
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		level, err := repo.GetStockForUpdate(ctx, tx, "999")
		require.NoError(t, err)
		assert.Nil(t, level)
	})

	t.Run("negative stock rejected by schema", func(t *testing.T) {
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		err = repo.SetStockAndAvailability(ctx, tx, "10", -1, model.AvailabilitySold)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to update product stock")
	})
}
