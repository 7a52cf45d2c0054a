package repository

import (
	"context"

	"orderflow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProductRepository defines product reads and the stock mutations owned by
// the inventory ledger.
type ProductRepository interface {
	// GetByID retrieves a single product by its ID. Returns nil when missing.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// GetByIDs retrieves multiple products by their IDs. Unknown IDs are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	// GetStockForUpdate reads and row-locks a product's stock within tx.
	// Returns nil when the product does not exist.
	GetStockForUpdate(ctx context.Context, tx pgx.Tx, id string) (*model.StockLevel, error)

	// SetStockAndAvailability writes a product's stock and availability within tx.
	SetStockAndAvailability(ctx context.Context, tx pgx.Tx, id string, quantity int, availability model.Availability) error
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// CreateOrder inserts a new order within the provided transaction.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateOrderItems inserts multiple order items within the provided transaction.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// GetByID retrieves an order by its ID along with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error)

	// GetByIdempotencyKey retrieves the order created with key, or nil.
	GetByIdempotencyKey(ctx context.Context, key string) (*model.Order, error)

	// LockByID reads and row-locks an order within tx. Returns nil when missing.
	LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)

	// GetItems lists an order's items within tx.
	GetItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]model.OrderItem, error)

	// UpdateStatus writes an order's status within tx.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus) error

	// UpdateFields applies the non-nil fields. Returns false when the order does not exist.
	UpdateFields(ctx context.Context, id uuid.UUID, fields model.OrderFieldsUpdate) (bool, error)

	// ListByCustomer lists a customer's orders, newest first.
	ListByCustomer(ctx context.Context, customerID string, page model.PageParams) ([]model.Order, error)

	// List lists all orders, newest first, optionally filtered by status.
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)

	// Delete removes an order and its items. Returns false when the order does not exist.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
