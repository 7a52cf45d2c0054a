package service

import (
	"context"

	"orderflow/internal/model"

	"github.com/google/uuid"
)

// ProductService exposes the read-only product stock view.
type ProductService interface {
	// GetByID retrieves a single product with its stock level.
	GetByID(ctx context.Context, id string) (*model.Product, error)
}

// OrderService defines the order lifecycle operations.
type OrderService interface {
	// CreateOrder validates the request, persists the order and its items
	// and decrements stock in one transaction.
	CreateOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResponse, error)

	// GetByID retrieves an order with its items and product labels.
	GetByID(ctx context.Context, id uuid.UUID) (*model.OrderResponse, error)

	// ListForCustomer lists a customer's orders, newest first.
	ListForCustomer(ctx context.Context, customerID string, page model.PageParams) ([]model.Order, error)

	// ListAll lists every order, newest first, optionally filtered by status.
	ListAll(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)

	// UpdateStatus moves an order to a new status, restoring stock when the
	// order is canceled.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error

	// UpdateFields changes recipient details or the note. No stock effect.
	UpdateFields(ctx context.Context, id uuid.UUID, fields model.OrderFieldsUpdate) error

	// Delete archives and removes an order. Stock is left untouched.
	Delete(ctx context.Context, id uuid.UUID) error
}
