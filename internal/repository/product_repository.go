package repository

import (
	"context"
	"errors"
	"fmt"

	"orderflow/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const productColumns = "id, name, price, category, stock_quantity, availability, created_at"

// productRepository implements the ProductRepository interface using PostgreSQL.
type productRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.StockQuantity, &p.Availability, &p.CreatedAt)
	return p, err
}

// GetByID retrieves a single product by its ID.
func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("product_id", id).Msg("product not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("product_id", id).Msg("failed to query product")
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &p, nil
}

// GetByIDs retrieves multiple products by their IDs.
func (r *productRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to query products by IDs")
		return nil, fmt.Errorf("failed to query products by IDs: %w", err)
	}
	defer rows.Close()

	products := make([]model.Product, 0, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan product row")
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating product rows")
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// GetStockForUpdate reads a product's stock and holds the row lock until tx ends.
func (r *productRepository) GetStockForUpdate(ctx context.Context, tx pgx.Tx, id string) (*model.StockLevel, error) {
	query := `
		SELECT id, stock_quantity, availability
		FROM products
		WHERE id = $1
		FOR UPDATE
	`

	var s model.StockLevel
	err := tx.QueryRow(ctx, query, id).Scan(&s.ProductID, &s.Quantity, &s.Availability)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("product_id", id).Msg("failed to lock product stock")
		return nil, fmt.Errorf("failed to lock product stock: %w", err)
	}

	return &s, nil
}

// SetStockAndAvailability writes stock and availability within tx.
func (r *productRepository) SetStockAndAvailability(
	ctx context.Context,
	tx pgx.Tx,
	id string,
	quantity int,
	availability model.Availability,
) error {
	query := `
		UPDATE products
		SET stock_quantity = $1, availability = $2
		WHERE id = $3
	`

	if _, err := tx.Exec(ctx, query, quantity, availability, id); err != nil {
		r.logger.Error().
			Err(err).
			Str("product_id", id).
			Int("stock_quantity", quantity).
			Msg("failed to update product stock")
		return fmt.Errorf("failed to update product stock: %w", err)
	}

	r.logger.Debug().
		Str("product_id", id).
		Int("stock_quantity", quantity).
		Str("availability", string(availability)).
		Msg("product stock updated")

	return nil
}
