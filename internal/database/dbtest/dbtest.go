// Package dbtest starts a disposable PostgreSQL instance with the
// application schema applied.
package dbtest

import (
	"context"
	"testing"
	"time"

	"orderflow/internal/database"
	"orderflow/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Product is a seed row for the products table.
type Product struct {
	ID       string
	Name     string
	Price    string
	Category string
	Stock    int
}

// ConnString starts a PostgreSQL container and returns its connection
// string. The container is terminated when the test ends. Skipped in
// short mode.
func ConnString(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	return connStr
}

// Start returns a pool connected to a fresh, migrated database.
func Start(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	logger := zerolog.Nop()

	pool, err := database.Connect(ctx, ConnString(t), database.DefaultPoolOptions(), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.Migrate(ctx, pool, logger); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return pool
}

// Seed inserts products with their stock levels.
func Seed(t *testing.T, pool *pgxpool.Pool, products ...Product) {
	t.Helper()

	ctx := context.Background()
	for _, p := range products {
		availability := model.AvailabilitySold
		if p.Stock > 0 {
			availability = model.AvailabilityAvailable
		}
		_, err := pool.Exec(ctx,
			`INSERT INTO products (id, name, price, category, stock_quantity, availability)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, p.Name, p.Price, p.Category, p.Stock, availability,
		)
		if err != nil {
			t.Fatalf("failed to seed product %s: %v", p.ID, err)
		}
	}
}

// Reset deletes all rows from the application tables.
func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	if _, err := pool.Exec(context.Background(), `TRUNCATE order_items, orders, products`); err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
}
