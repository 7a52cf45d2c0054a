package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orderflow/internal/handler"
	"orderflow/internal/model"
	"orderflow/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

const testAPIKey = "test-key"

type stubOrders struct {
	service.OrderService
	lastCustomer string
}

func (s *stubOrders) GetByID(_ context.Context, id uuid.UUID) (*model.OrderResponse, error) {
	return &model.OrderResponse{Order: model.Order{ID: id, Status: model.StatusPending}}, nil
}

func (s *stubOrders) ListForCustomer(_ context.Context, customerID string, _ model.PageParams) ([]model.Order, error) {
	s.lastCustomer = customerID
	return []model.Order{}, nil
}

func (s *stubOrders) ListAll(context.Context, model.OrderFilter) ([]model.Order, error) {
	return []model.Order{}, nil
}

func (s *stubOrders) UpdateStatus(context.Context, uuid.UUID, string) error {
	return nil
}

type stubProducts struct{}

func (stubProducts) GetByID(_ context.Context, id string) (*model.Product, error) {
	if id != "10" {
		return nil, model.ErrProductNotFound
	}
	return &model.Product{ID: id, Name: "Laptop", StockQuantity: 5}, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(orders *stubOrders, db Pinger) http.Handler {
	logger := zerolog.Nop()
	return New(Config{
		Products: handler.NewProductHandler(stubProducts{}, logger),
		Orders:   handler.NewOrderHandler(orders, logger),
		Database: db,
		APIKey:   testAPIKey,
		Logger:   logger,
	})
}

func TestRouter_Routes(t *testing.T) {
	orderID := uuid.New()

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		apiKey         string
		expectedStatus int
	}{
		{name: "health is public", method: http.MethodGet, path: "/health", expectedStatus: http.StatusOK},
		{name: "metrics is public", method: http.MethodGet, path: "/metrics", expectedStatus: http.StatusOK},
		{name: "api requires key", method: http.MethodGet, path: "/api/orders", expectedStatus: http.StatusUnauthorized},
		{name: "list orders", method: http.MethodGet, path: "/api/orders", apiKey: testAPIKey, expectedStatus: http.StatusOK},
		{name: "list orders trailing slash", method: http.MethodGet, path: "/api/orders/", apiKey: testAPIKey, expectedStatus: http.StatusOK},
		{name: "get order", method: http.MethodGet, path: "/api/orders/" + orderID.String(), apiKey: testAPIKey, expectedStatus: http.StatusOK},
		{name: "update status", method: http.MethodPut, path: "/api/orders/" + orderID.String() + "/status", body: `{"status":"confirmed"}`, apiKey: testAPIKey, expectedStatus: http.StatusNoContent},
		{name: "customer orders", method: http.MethodGet, path: "/api/customers/c-1/orders", apiKey: testAPIKey, expectedStatus: http.StatusOK},
		{name: "product stock view", method: http.MethodGet, path: "/api/products/10", apiKey: testAPIKey, expectedStatus: http.StatusOK},
		{name: "unknown product", method: http.MethodGet, path: "/api/products/99", apiKey: testAPIKey, expectedStatus: http.StatusNotFound},
		{name: "unknown route", method: http.MethodGet, path: "/api/unknown", apiKey: testAPIKey, expectedStatus: http.StatusNotFound},
		{name: "wrong method", method: http.MethodPost, path: "/api/orders/" + orderID.String(), apiKey: testAPIKey, expectedStatus: http.StatusMethodNotAllowed},
		{name: "preflight skips auth", method: http.MethodOptions, path: "/api/orders", expectedStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubOrders{}, nil)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestRouter_IdentityReachesHandlers(t *testing.T) {
	orders := &stubOrders{}
	router := newTestRouter(orders, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/me/orders", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("X-Customer-ID", "customer-42")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "customer-42", orders.lastCustomer)
}

func TestRouter_HealthReportsDatabase(t *testing.T) {
	tests := []struct {
		name           string
		ping           error
		expectedStatus int
		expectedBody   string
	}{
		{name: "healthy", expectedStatus: http.StatusOK, expectedBody: `{"status":"healthy"}`},
		{name: "database down", ping: errors.New("connection refused"), expectedStatus: http.StatusServiceUnavailable, expectedBody: `{"status":"unhealthy"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubOrders{}, pingFunc(func(context.Context) error { return tt.ping }))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}
