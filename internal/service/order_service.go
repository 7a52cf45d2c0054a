package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"orderflow/internal/archive"
	"orderflow/internal/cache"
	"orderflow/internal/events"
	"orderflow/internal/inventory"
	"orderflow/internal/metrics"
	"orderflow/internal/model"
	"orderflow/internal/repository"
	"orderflow/internal/telemetry"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer(telemetry.TracerName)

const (
	moneyScale           = 2
	maxIdempotencyKeyLen = 128
)

// maxMoney is the exclusive upper bound of a NUMERIC(14,2) amount.
var maxMoney = decimal.New(1, 12)

// OrderDeps are the collaborators of the order service. Cache, Publisher
// and Archiver are optional.
type OrderDeps struct {
	Orders    repository.OrderRepository
	Products  repository.ProductRepository
	Ledger    inventory.Ledger
	Cache     cache.Cache
	Publisher events.Publisher
	Archiver  archive.Archiver
}

// orderService implements OrderService.
type orderService struct {
	orderRepo       repository.OrderRepository
	productRepo     repository.ProductRepository
	ledger          inventory.Ledger
	cache           cache.Cache
	publisher       events.Publisher
	archiver        archive.Archiver
	validate        *validator.Validate
	defaultCurrency string
	logger          zerolog.Logger

	// cacheGen counts invalidations; reads that started before the latest
	// one must not repopulate the cache.
	cacheMu  sync.RWMutex
	cacheGen uint64
}

// NewOrderService creates a new order service.
func NewOrderService(deps OrderDeps, defaultCurrency string, logger zerolog.Logger) OrderService {
	if deps.Cache == nil {
		deps.Cache = cache.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewNopPublisher()
	}

	return &orderService{
		orderRepo:       deps.Orders,
		productRepo:     deps.Products,
		ledger:          deps.Ledger,
		cache:           deps.Cache,
		publisher:       deps.Publisher,
		archiver:        deps.Archiver,
		validate:        newValidator(),
		defaultCurrency: strings.ToUpper(defaultCurrency),
		logger:          logger.With().Str("service", "order").Logger(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateOrder validates the request, prices the items and persists the
// order, its items and the stock decrements in a single transaction.
func (s *orderService) CreateOrder(ctx context.Context, req *model.OrderRequest) (resp *model.OrderResponse, err error) {
	ctx, span := tracer.Start(ctx, "order.create")
	defer func() { endSpan(span, err) }()

	defer func() {
		if err != nil {
			reason := model.ErrorCode(err)
			if reason == "" {
				reason = model.ErrCodeInternalError
			}
			metrics.OrderCreateFailures.WithLabelValues(reason).Inc()
		}
	}()

	if err = s.validateOrderRequest(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, lookupErr := s.replay(ctx, req.IdempotencyKey)
		if lookupErr != nil || existing != nil {
			return existing, lookupErr
		}
	}

	products, err := s.loadProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	order, items, err := s.buildOrder(req, products)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()), attribute.Int("order.items", len(items)))

	if err = s.persistOrder(ctx, order, items); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			s.logger.Info().Str("idempotency_key", req.IdempotencyKey).Msg("concurrent duplicate create, returning existing order")
			existing, lookupErr := s.replay(ctx, req.IdempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	metrics.OrdersCreated.Inc()
	metrics.StockUnitsDecremented.Add(float64(units))

	s.publish(ctx, events.NewEvent(events.TypeOrderCreated, order.ID, map[string]any{
		"status":   order.Status,
		"total":    order.Total.String(),
		"currency": order.Currency,
		"items":    len(items),
	}))

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Int("item_count", len(items)).
		Str("total", order.Total.String()).
		Msg("order created successfully")

	return &model.OrderResponse{
		Order: *order,
		Items: labelItems(items, products),
	}, nil
}

// persistOrder runs the order insert, item insert and stock decrements in
// one transaction. Decrements are issued in product id order so concurrent
// orders lock product rows in the same sequence.
func (s *orderService) persistOrder(ctx context.Context, order *model.Order, items []model.OrderItem) (err error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return fmt.Errorf("failed to create order: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			return err
		}
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	if err = s.orderRepo.CreateOrderItems(ctx, tx, items); err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Int("item_count", len(items)).
			Msg("failed to create order items")
		return fmt.Errorf("failed to create order items: %w", err)
	}

	for _, item := range sortedByProduct(items) {
		if err = s.ledger.Decrement(ctx, tx, item.ProductID, item.Quantity); err != nil {
			if model.ErrorCode(err) != "" {
				s.logger.Info().
					Str("order_id", order.ID.String()).
					Str("product_id", item.ProductID).
					Err(err).
					Msg("order rejected by inventory")
				return err
			}
			s.logger.Error().
				Err(err).
				Str("order_id", order.ID.String()).
				Str("product_id", item.ProductID).
				Msg("failed to decrement stock")
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit transaction")
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// replay returns the order previously created with key, or nil.
func (s *orderService) replay(ctx context.Context, key string) (*model.OrderResponse, error) {
	existing, err := s.orderRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("idempotency_key", key).Msg("failed to look up idempotency key")
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if existing == nil {
		return nil, nil
	}

	s.logger.Info().
		Str("order_id", existing.ID.String()).
		Str("idempotency_key", key).
		Msg("replayed order creation")

	return s.GetByID(ctx, existing.ID)
}

// loadProducts fetches every referenced product. Any unknown id fails the
// request before a transaction is opened.
func (s *orderService) loadProducts(ctx context.Context, items []model.OrderItemRequest) (map[string]model.Product, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("product_count", len(ids)).Msg("failed to load products")
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			s.logger.Warn().Str("product_id", id).Msg("product not found")
			return nil, model.NewDomainError(model.ErrCodeProductNotFound, fmt.Sprintf("Product %s not found", id))
		}
	}

	return byID, nil
}

// buildOrder prices every line and resolves the order total. A unit price
// sent by the caller is captured as-is; otherwise the catalogue price is used.
func (s *orderService) buildOrder(req *model.OrderRequest, products map[string]model.Product) (*model.Order, []model.OrderItem, error) {
	orderID := uuid.New()
	items := make([]model.OrderItem, len(req.Items))
	subtotal := decimal.Zero

	for i, line := range req.Items {
		unitPrice := products[line.ProductID].Price
		if line.UnitPrice != nil {
			unitPrice = *line.UnitPrice
		}
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		if !subtotal.LessThan(maxMoney) {
			return nil, nil, model.NewValidationError(
				fmt.Sprintf("order subtotal must be less than %s", maxMoney.String()))
		}

		items[i] = model.OrderItem{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		}
	}

	discount := decimal.Zero
	if req.EducationDiscount != nil {
		discount = *req.EducationDiscount
	}
	if discount.GreaterThan(subtotal) {
		return nil, nil, model.NewValidationError("educationDiscount cannot exceed the item subtotal")
	}

	total := subtotal.Sub(discount)
	if req.Total != nil && !req.Total.Equal(total) {
		s.logger.Warn().
			Str("supplied_total", req.Total.String()).
			Str("computed_total", total.String()).
			Msg("order total mismatch")
		return nil, nil, model.NewDomainError(model.ErrCodeTotalMismatch,
			fmt.Sprintf("Supplied total %s does not match computed total %s", req.Total.String(), total.String()))
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}

	var idempotencyKey *string
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		idempotencyKey = &key
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:                orderID,
		CustomerID:        req.CustomerID,
		RecipientName:     req.RecipientName,
		RecipientPhone:    req.RecipientPhone,
		RecipientAddress:  req.RecipientAddress,
		Total:             total,
		Currency:          currency,
		EducationDiscount: discount,
		PaymentMethod:     req.PaymentMethod,
		Note:              req.Note,
		Status:            model.StatusPending,
		IdempotencyKey:    idempotencyKey,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	return order, items, nil
}

// validateOrderRequest trims and validates the request.
func (s *orderService) validateOrderRequest(req *model.OrderRequest) error {
	if req == nil {
		return model.NewValidationError("order request is required")
	}

	req.RecipientName = strings.TrimSpace(req.RecipientName)
	req.RecipientPhone = strings.TrimSpace(req.RecipientPhone)
	req.RecipientAddress = strings.TrimSpace(req.RecipientAddress)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.Currency = strings.TrimSpace(req.Currency)
	req.Note = strings.TrimSpace(req.Note)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
	}

	if err := s.validate.Struct(req); err != nil {
		s.logger.Warn().Err(err).Msg("order request validation failed")
		return validationError(err)
	}

	for i, item := range req.Items {
		if item.Quantity <= 0 {
			s.logger.Warn().
				Int("item_index", i).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("invalid quantity")
			return model.ErrInvalidQuantity
		}
		if err := checkMoney(fmt.Sprintf("items[%d].unitPrice", i), item.UnitPrice); err != nil {
			return err
		}
	}

	if err := checkMoney("educationDiscount", req.EducationDiscount); err != nil {
		return err
	}
	if err := checkMoney("total", req.Total); err != nil {
		return err
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return model.NewValidationError(fmt.Sprintf("Idempotency-Key must be at most %d characters", maxIdempotencyKeyLen))
	}

	return nil
}

// checkMoney rejects amounts that NUMERIC(14,2) columns would round or
// refuse: negatives, more than two decimal places, or 10^12 and above.
func checkMoney(field string, amount *decimal.Decimal) error {
	if amount == nil {
		return nil
	}
	switch {
	case amount.IsNegative():
		return model.NewValidationError(fmt.Sprintf("%s must not be negative", field))
	case !amount.Equal(amount.Truncate(moneyScale)):
		return model.NewValidationError(fmt.Sprintf("%s must have at most %d decimal places", field, moneyScale))
	case !amount.LessThan(maxMoney):
		return model.NewValidationError(fmt.Sprintf("%s must be less than %s", field, maxMoney.String()))
	}
	return nil
}

// validationError flattens validator output into a single domain error.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return model.NewValidationError(err.Error())
	}

	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed on %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed on %s", field, fe.Tag()))
		}
	}
	return model.NewValidationError(strings.Join(parts, "; "))
}

func sortedByProduct(items []model.OrderItem) []model.OrderItem {
	sorted := make([]model.OrderItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})
	return sorted
}

func labelItems(items []model.OrderItem, products map[string]model.Product) []model.OrderItemView {
	views := make([]model.OrderItemView, len(items))
	for i, item := range items {
		views[i] = model.OrderItemView{
			OrderItem:   item,
			ProductName: products[item.ProductID].Name,
		}
	}
	return views
}

// publish sends an event after the owning transaction committed. Failures
// are logged and counted, never returned.
func (s *orderService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		metrics.EventPublishFailures.WithLabelValues(event.Type).Inc()
		s.logger.Error().
			Err(err).
			Str("event_type", event.Type).
			Str("order_id", event.OrderID.String()).
			Msg("failed to publish event")
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
