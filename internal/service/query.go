package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"orderflow/internal/cache"
	"orderflow/internal/events"
	"orderflow/internal/model"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// GetByID retrieves an order with its items and product labels. The
// assembled response is cached until the order is mutated.
func (s *orderService) GetByID(ctx context.Context, id uuid.UUID) (resp *model.OrderResponse, err error) {
	ctx, span := tracer.Start(ctx, "order.get")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order.id", id.String()))

	if cached := s.cached(ctx, id); cached != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	// Taken before the read so a mutation committed meanwhile voids the store.
	generation := s.cacheGeneration()

	order, items, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if order == nil {
		s.logger.Debug().Str("order_id", id.String()).Msg("order not found")
		return nil, model.ErrOrderNotFound
	}

	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}

	products := make(map[string]model.Product, len(productIDs))
	if len(productIDs) > 0 {
		found, err := s.productRepo.GetByIDs(ctx, productIDs)
		if err != nil {
			s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to retrieve product details")
			return nil, fmt.Errorf("failed to retrieve product details: %w", err)
		}
		for _, p := range found {
			products[p.ID] = p
		}
	}

	resp = &model.OrderResponse{
		Order: *order,
		Items: labelItems(items, products),
	}
	s.store(ctx, resp, generation)

	return resp, nil
}

// ListForCustomer lists a customer's orders, newest first.
func (s *orderService) ListForCustomer(ctx context.Context, customerID string, page model.PageParams) ([]model.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, model.NewValidationError("customer id is required")
	}

	page = normalizePage(page)
	orders, err := s.orderRepo.ListByCustomer(ctx, customerID, page)
	if err != nil {
		s.logger.Error().Err(err).
			Str("customer_id", customerID).
			Int("limit", page.Limit).
			Int("offset", page.Offset).
			Msg("failed to list customer orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	s.logger.Debug().
		Str("customer_id", customerID).
		Int("count", len(orders)).
		Msg("retrieved customer orders")

	return orders, nil
}

// ListAll lists every order, newest first, optionally filtered by status.
func (s *orderService) ListAll(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, model.ErrInvalidStatus
	}

	filter.Page = normalizePage(filter.Page)
	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).
			Int("limit", filter.Page.Limit).
			Int("offset", filter.Page.Offset).
			Msg("failed to list orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	s.logger.Debug().
		Int("count", len(orders)).
		Int("limit", filter.Page.Limit).
		Int("offset", filter.Page.Offset).
		Msg("retrieved orders")

	return orders, nil
}

// Delete archives a snapshot of the order and removes it with its items.
// Stock consumed by the order is not returned.
func (s *orderService) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "order.delete")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order.id", id.String()))

	snapshot, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if s.archiver != nil {
		if err = s.archiver.Archive(ctx, snapshot); err != nil {
			s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to archive order")
			return fmt.Errorf("failed to archive order: %w", err)
		}
	}

	found, err := s.orderRepo.Delete(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to delete order")
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if !found {
		return model.ErrOrderNotFound
	}

	s.invalidate(ctx, id)
	s.publish(ctx, events.NewEvent(events.TypeOrderDeleted, id, map[string]any{
		"status": snapshot.Status,
	}))

	s.logger.Info().
		Str("order_id", id.String()).
		Str("status", string(snapshot.Status)).
		Msg("order deleted")

	return nil
}

func normalizePage(page model.PageParams) model.PageParams {
	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	return page
}

func orderCacheKey(id uuid.UUID) string {
	return "order:" + id.String()
}

// cached returns the cached response or nil. Cache errors degrade to a miss.
func (s *orderService) cached(ctx context.Context, id uuid.UUID) *model.OrderResponse {
	data, err := s.cache.Get(ctx, orderCacheKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Str("order_id", id.String()).Msg("cache read failed")
		}
		return nil
	}

	var resp model.OrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Warn().Err(err).Str("order_id", id.String()).Msg("discarding undecodable cache entry")
		return nil
	}
	return &resp
}

func (s *orderService) cacheGeneration() uint64 {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cacheGen
}

// store caches resp unless an invalidation happened after generation was
// taken. The read lock is held across the write so invalidate cannot slip
// between the check and the Set.
func (s *orderService) store(ctx context.Context, resp *model.OrderResponse, generation uint64) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	if s.cacheGen != generation {
		s.logger.Debug().Str("order_id", resp.ID.String()).Msg("skipping cache write for order read before a mutation")
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", resp.ID.String()).Msg("failed to encode order for cache")
		return
	}
	if err := s.cache.Set(ctx, orderCacheKey(resp.ID), data); err != nil {
		s.logger.Warn().Err(err).Str("order_id", resp.ID.String()).Msg("cache write failed")
	}
}

// invalidate drops the cached order and voids every read still in flight.
func (s *orderService) invalidate(ctx context.Context, id uuid.UUID) {
	s.cacheMu.Lock()
	s.cacheGen++
	s.cacheMu.Unlock()

	if err := s.cache.Delete(ctx, orderCacheKey(id)); err != nil {
		s.logger.Warn().Err(err).Str("order_id", id.String()).Msg("cache invalidation failed")
	}
}
