package integration

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"orderflow/internal/archive"
	"orderflow/internal/cache"
	"orderflow/internal/database/dbtest"
	"orderflow/internal/events"
	"orderflow/internal/handler"
	"orderflow/internal/inventory"
	"orderflow/internal/repository"
	"orderflow/internal/router"
	"orderflow/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key"

// TestEnv is a fully wired application backed by a PostgreSQL container.
type TestEnv struct {
	Pool       *pgxpool.Pool
	Orders     service.OrderService
	Products   service.ProductService
	Server     http.Handler
	ArchiveDir string
	Events     *eventRecorder
}

// eventRecorder collects published lifecycle events.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) Close() error { return nil }

// Types returns the recorded event types in publish order.
func (r *eventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// SetupTestEnv starts PostgreSQL, applies the schema and wires the
// services, handlers and router the way the server binary does.
func SetupTestEnv(t *testing.T, policy inventory.Policy) *TestEnv {
	t.Helper()

	logger := zerolog.Nop()
	pool := dbtest.Start(t)

	archiveDir := t.TempDir()
	archiver, err := archive.NewFileArchiver(archiveDir, logger)
	require.NoError(t, err)

	orderCache := cache.NewLRUCache(100, time.Minute)
	t.Cleanup(func() { _ = orderCache.Close() })

	recorder := &eventRecorder{}

	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)

	productService := service.NewProductService(productRepo, logger)
	orderService := service.NewOrderService(service.OrderDeps{
		Orders:    orderRepo,
		Products:  productRepo,
		Ledger:    inventory.NewLedger(productRepo, policy, logger),
		Cache:     orderCache,
		Publisher: recorder,
		Archiver:  archiver,
	}, "VND", logger)

	server := router.New(router.Config{
		Products: handler.NewProductHandler(productService, logger),
		Orders:   handler.NewOrderHandler(orderService, logger),
		Database: pool,
		APIKey:   testAPIKey,
		Logger:   logger,
	})

	return &TestEnv{
		Pool:       pool,
		Orders:     orderService,
		Products:   productService,
		Server:     server,
		ArchiveDir: archiveDir,
		Events:     recorder,
	}
}

// SeedProducts resets the tables and inserts the standard catalogue.
func (e *TestEnv) SeedProducts(t *testing.T) {
	t.Helper()

	dbtest.Reset(t, e.Pool)
	dbtest.Seed(t, e.Pool,
		dbtest.Product{ID: "10", Name: "Laptop", Price: "500000", Category: "Electronics", Stock: 5},
		dbtest.Product{ID: "20", Name: "Charger", Price: "200000", Category: "Accessories", Stock: 2},
		dbtest.Product{ID: "30", Name: "Sleeve", Price: "100000", Category: "Accessories", Stock: 10},
	)
}

// Stock returns a product's stock quantity and availability.
func (e *TestEnv) Stock(t *testing.T, productID string) (int, string) {
	t.Helper()

	var (
		qty          int
		availability string
	)
	err := e.Pool.QueryRow(context.Background(),
		`SELECT stock_quantity, availability FROM products WHERE id = $1`, productID,
	).Scan(&qty, &availability)
	require.NoError(t, err)
	return qty, availability
}
