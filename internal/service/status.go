package service

import (
	"context"
	"fmt"
	"strings"

	"orderflow/internal/events"
	"orderflow/internal/metrics"
	"orderflow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
)

// UpdateStatus applies a status transition under a row lock on the order.
// Moving into canceled returns every item's quantity to stock in the same
// transaction. Repeating the current status is a no-op.
func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (err error) {
	ctx, span := tracer.Start(ctx, "order.update_status")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order.id", id.String()))

	next, err := model.ParseOrderStatus(status)
	if err != nil {
		s.logger.Warn().Str("order_id", id.String()).Str("status", status).Msg("unknown order status")
		return err
	}
	span.SetAttributes(attribute.String("order.status", string(next)))

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return fmt.Errorf("failed to update order status: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	order, err := s.orderRepo.LockByID(ctx, tx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to lock order")
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if order == nil {
		s.logger.Debug().Str("order_id", id.String()).Msg("order not found")
		err = model.ErrOrderNotFound
		return err
	}

	previous := order.Status
	if previous == next {
		if err = tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		s.logger.Debug().Str("order_id", id.String()).Str("status", string(next)).Msg("status unchanged")
		return nil
	}

	if !previous.CanTransitionTo(next) {
		s.logger.Warn().
			Str("order_id", id.String()).
			Str("from", string(previous)).
			Str("to", string(next)).
			Msg("status transition rejected")
		err = model.NewDomainError(model.ErrCodeInvalidTransition,
			fmt.Sprintf("Cannot move order from %s to %s", previous, next))
		return err
	}

	if err = s.orderRepo.UpdateStatus(ctx, tx, id, next); err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to write order status")
		return fmt.Errorf("failed to update order status: %w", err)
	}

	restored := 0
	if next == model.StatusCanceled {
		restored, err = s.restoreStock(ctx, tx, id)
		if err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to commit transaction")
		return fmt.Errorf("failed to update order status: %w", err)
	}

	s.invalidate(ctx, id)
	metrics.StatusTransitions.WithLabelValues(string(previous), string(next)).Inc()
	if restored > 0 {
		metrics.StockUnitsRestored.Add(float64(restored))
	}

	s.publish(ctx, events.NewEvent(events.TypeOrderStatusChanged, id, map[string]any{
		"from": previous,
		"to":   next,
	}))

	s.logger.Info().
		Str("order_id", id.String()).
		Str("from", string(previous)).
		Str("to", string(next)).
		Int("units_restored", restored).
		Msg("order status updated")

	return nil
}

// restoreStock returns every item of the order to stock in product id order.
func (s *orderService) restoreStock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	items, err := s.orderRepo.GetItems(ctx, tx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to load order items")
		return 0, fmt.Errorf("failed to load order items: %w", err)
	}

	units := 0
	for _, item := range sortedByProduct(items) {
		if err := s.ledger.Restore(ctx, tx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error().
				Err(err).
				Str("order_id", id.String()).
				Str("product_id", item.ProductID).
				Msg("failed to restore stock")
			return 0, fmt.Errorf("failed to restore stock: %w", err)
		}
		units += item.Quantity
	}

	return units, nil
}

// UpdateFields changes recipient details or the note without touching
// stock or status.
func (s *orderService) UpdateFields(ctx context.Context, id uuid.UUID, fields model.OrderFieldsUpdate) (err error) {
	ctx, span := tracer.Start(ctx, "order.update_fields")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order.id", id.String()))

	if err = s.validateFieldsUpdate(&fields); err != nil {
		return err
	}

	found, err := s.orderRepo.UpdateFields(ctx, id, fields)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to update order fields")
		return fmt.Errorf("failed to update order fields: %w", err)
	}
	if !found {
		s.logger.Debug().Str("order_id", id.String()).Msg("order not found")
		return model.ErrOrderNotFound
	}

	s.invalidate(ctx, id)
	s.logger.Info().Str("order_id", id.String()).Msg("order fields updated")

	return nil
}

func (s *orderService) validateFieldsUpdate(fields *model.OrderFieldsUpdate) error {
	if fields.Empty() {
		return model.NewValidationError("at least one field must be provided")
	}

	required := []struct {
		name  string
		value **string
	}{
		{"recipientName", &fields.RecipientName},
		{"recipientPhone", &fields.RecipientPhone},
		{"recipientAddress", &fields.RecipientAddress},
	}
	for _, f := range required {
		if *f.value == nil {
			continue
		}
		trimmed := strings.TrimSpace(**f.value)
		if trimmed == "" {
			return model.NewValidationError(f.name + " must not be empty")
		}
		*f.value = &trimmed
	}
	if fields.Note != nil {
		trimmed := strings.TrimSpace(*fields.Note)
		fields.Note = &trimmed
	}

	if err := s.validate.Struct(fields); err != nil {
		s.logger.Warn().Err(err).Msg("order fields validation failed")
		return validationError(err)
	}

	return nil
}
