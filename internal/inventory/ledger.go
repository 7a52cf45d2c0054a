// Package inventory owns stock mutations for product rows. Every operation
// runs inside a transaction supplied by the caller.
package inventory

import (
	"context"
	"fmt"

	"orderflow/internal/model"
	"orderflow/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Ledger adjusts product stock inside the caller's transaction.
type Ledger interface {
	// Decrement removes quantity units from a product's stock.
	Decrement(ctx context.Context, tx pgx.Tx, productID string, quantity int) error

	// Restore returns quantity units to a product's stock and re-lists it.
	Restore(ctx context.Context, tx pgx.Tx, productID string, quantity int) error
}

// Policy controls how a decrement larger than the remaining stock is handled.
type Policy struct {
	// AllowOversell clamps stock at zero instead of rejecting the decrement.
	AllowOversell bool
}

type ledger struct {
	products repository.ProductRepository
	policy   Policy
	logger   zerolog.Logger
}

// NewLedger creates a ledger backed by the product repository.
func NewLedger(products repository.ProductRepository, policy Policy, logger zerolog.Logger) Ledger {
	return &ledger{
		products: products,
		policy:   policy,
		logger:   logger.With().Str("component", "inventory").Logger(),
	}
}

// Decrement locks the product row, subtracts quantity and marks the product
// sold when nothing remains. A missing product row is a no-op.
func (l *ledger) Decrement(ctx context.Context, tx pgx.Tx, productID string, quantity int) error {
	stock, err := l.products.GetStockForUpdate(ctx, tx, productID)
	if err != nil {
		return fmt.Errorf("failed to read stock for %s: %w", productID, err)
	}
	if stock == nil {
		l.logger.Warn().Str("product_id", productID).Int("quantity", quantity).Msg("decrement skipped: product row missing")
		return nil
	}

	remaining, availability, rejected := nextAfterDecrement(stock.Quantity, quantity, l.policy.AllowOversell)
	if rejected != nil {
		l.logger.Info().
			Str("product_id", productID).
			Int("stock_quantity", stock.Quantity).
			Int("requested", quantity).
			Msg("decrement rejected: insufficient stock")
		return model.NewDomainError(rejected.Code, fmt.Sprintf("Insufficient stock for product %s", productID))
	}
	if stock.Quantity < quantity {
		l.logger.Warn().
			Str("product_id", productID).
			Int("stock_quantity", stock.Quantity).
			Int("requested", quantity).
			Msg("oversell clamped to zero")
	}

	return l.products.SetStockAndAvailability(ctx, tx, productID, remaining, availability)
}

// Restore locks the product row, adds quantity back and sets the product
// available. A product an operator had hidden is re-listed as well.
func (l *ledger) Restore(ctx context.Context, tx pgx.Tx, productID string, quantity int) error {
	stock, err := l.products.GetStockForUpdate(ctx, tx, productID)
	if err != nil {
		return fmt.Errorf("failed to read stock for %s: %w", productID, err)
	}
	if stock == nil {
		l.logger.Warn().Str("product_id", productID).Int("quantity", quantity).Msg("restore skipped: product row missing")
		return nil
	}

	if stock.Availability == model.AvailabilityHidden {
		l.logger.Warn().Str("product_id", productID).Msg("restore re-lists a hidden product")
	}

	return l.products.SetStockAndAvailability(ctx, tx, productID, stock.Quantity+quantity, model.AvailabilityAvailable)
}

func nextAfterDecrement(stock, quantity int, allowOversell bool) (int, model.Availability, *model.DomainError) {
	remaining := stock - quantity
	if remaining < 0 {
		if !allowOversell {
			return stock, "", model.ErrInsufficientStock
		}
		remaining = 0
	}
	if remaining == 0 {
		return 0, model.AvailabilitySold, nil
	}
	return remaining, model.AvailabilityAvailable, nil
}
