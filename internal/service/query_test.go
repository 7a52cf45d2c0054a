package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderflow/internal/cache"
	"orderflow/internal/events"
	"orderflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func storedOrder() (*model.Order, []model.OrderItem) {
	order := &model.Order{
		ID:            uuid.New(),
		RecipientName: "Nguyen Van A",
		Total:         dec("1000000"),
		Currency:      "VND",
		Status:        model.StatusPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
	items := []model.OrderItem{
		{ID: uuid.New(), OrderID: order.ID, ProductID: "10", Quantity: 2, UnitPrice: dec("500000"), LineTotal: dec("1000000")},
	}
	return order, items
}

func TestOrderService_GetByID(t *testing.T) {
	t.Run("assembles order with labels", func(t *testing.T) {
		f := newFixture(t)
		order, items := storedOrder()

		f.orders.On("GetByID", mock.Anything, order.ID).Return(order, items, nil)
		f.products.On("GetByIDs", mock.Anything, []string{"10"}).Return([]model.Product{laptop()}, nil)

		resp, err := f.svc.GetByID(context.Background(), order.ID)

		require.NoError(t, err)
		assert.Equal(t, order.ID, resp.ID)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "Laptop", resp.Items[0].ProductName)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("GetByID", mock.Anything, id).Return(nil, nil, nil)

		resp, err := f.svc.GetByID(context.Background(), id)

		assert.Nil(t, resp)
		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})

	t.Run("repository error", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("GetByID", mock.Anything, id).Return(nil, nil, errors.New("database error"))

		_, err := f.svc.GetByID(context.Background(), id)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get order")
	})
}

func TestOrderService_GetByID_ReadThroughCache(t *testing.T) {
	orders := new(MockOrderRepository)
	products := new(MockProductRepository)
	ledger := new(MockLedger)
	tx := new(MockTx)
	lru := cache.NewLRUCache(16, time.Minute)
	defer lru.Close()

	svc := NewOrderService(OrderDeps{
		Orders:   orders,
		Products: products,
		Ledger:   ledger,
		Cache:    lru,
	}, "VND", zerolog.Nop())

	ctx := context.Background()
	order, items := storedOrder()

	orders.On("GetByID", mock.Anything, order.ID).Return(order, items, nil).Once()
	products.On("GetByIDs", mock.Anything, []string{"10"}).Return([]model.Product{laptop()}, nil).Once()

	first, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	second, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.Total.Equal(second.Total))
	assert.Equal(t, "Laptop", second.Items[0].ProductName)
	orders.AssertNumberOfCalls(t, "GetByID", 1)

	// A status change invalidates the cached entry.
	orders.On("BeginTx", mock.Anything).Return(tx, nil)
	orders.On("LockByID", mock.Anything, tx, order.ID).Return(&model.Order{ID: order.ID, Status: model.StatusPending}, nil)
	orders.On("UpdateStatus", mock.Anything, tx, order.ID, model.StatusConfirmed).Return(nil)
	tx.On("Commit", mock.Anything).Return(nil)
	require.NoError(t, svc.UpdateStatus(ctx, order.ID, "confirmed"))

	confirmed := *order
	confirmed.Status = model.StatusConfirmed
	orders.On("GetByID", mock.Anything, order.ID).Return(&confirmed, items, nil).Once()
	products.On("GetByIDs", mock.Anything, []string{"10"}).Return([]model.Product{laptop()}, nil).Once()

	third, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, third.Status)
	orders.AssertNumberOfCalls(t, "GetByID", 2)
}

func TestOrderService_GetByID_StatusChangeDuringReadIsNotCached(t *testing.T) {
	orders := new(MockOrderRepository)
	products := new(MockProductRepository)
	ledger := new(MockLedger)
	tx := new(MockTx)
	lru := cache.NewLRUCache(16, time.Minute)
	defer lru.Close()

	svc := NewOrderService(OrderDeps{
		Orders:   orders,
		Products: products,
		Ledger:   ledger,
		Cache:    lru,
	}, "VND", zerolog.Nop())

	ctx := context.Background()
	order, items := storedOrder()

	orders.On("BeginTx", mock.Anything).Return(tx, nil)
	orders.On("LockByID", mock.Anything, tx, order.ID).Return(&model.Order{ID: order.ID, Status: model.StatusPending}, nil)
	orders.On("UpdateStatus", mock.Anything, tx, order.ID, model.StatusConfirmed).Return(nil)
	tx.On("Commit", mock.Anything).Return(nil)

	// The reader loads the pending row, then the transition commits and
	// invalidates before the reader gets to store its response.
	orders.On("GetByID", mock.Anything, order.ID).Return(order, items, nil).Once()
	products.On("GetByIDs", mock.Anything, []string{"10"}).
		Run(func(mock.Arguments) {
			require.NoError(t, svc.UpdateStatus(ctx, order.ID, "confirmed"))
		}).
		Return([]model.Product{laptop()}, nil).Once()

	stale, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stale.Status)

	confirmed := *order
	confirmed.Status = model.StatusConfirmed
	orders.On("GetByID", mock.Anything, order.ID).Return(&confirmed, items, nil).Once()
	products.On("GetByIDs", mock.Anything, []string{"10"}).Return([]model.Product{laptop()}, nil).Once()

	fresh, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, fresh.Status)
	orders.AssertNumberOfCalls(t, "GetByID", 2)

	// Reads started after the transition are cached again.
	again, err := svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, again.Status)
	orders.AssertNumberOfCalls(t, "GetByID", 2)
}

func TestOrderService_ListAll(t *testing.T) {
	shipping := model.StatusShipping
	bogus := model.OrderStatus("lost")

	tests := []struct {
		name     string
		filter   model.OrderFilter
		expected model.OrderFilter
		wantErr  error
	}{
		{
			name:     "defaults applied",
			filter:   model.OrderFilter{},
			expected: model.OrderFilter{Page: model.PageParams{Limit: 10, Offset: 0}},
		},
		{
			name:     "limit capped and offset clamped",
			filter:   model.OrderFilter{Page: model.PageParams{Limit: 500, Offset: -3}},
			expected: model.OrderFilter{Page: model.PageParams{Limit: 100, Offset: 0}},
		},
		{
			name:     "status filter passed through",
			filter:   model.OrderFilter{Page: model.PageParams{Limit: 5, Offset: 10}, Status: &shipping},
			expected: model.OrderFilter{Page: model.PageParams{Limit: 5, Offset: 10}, Status: &shipping},
		},
		{
			name:    "unknown status rejected",
			filter:  model.OrderFilter{Status: &bogus},
			wantErr: model.ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.wantErr == nil {
				f.orders.On("List", mock.Anything, tt.expected).Return([]model.Order{{ID: uuid.New()}}, nil)
			}

			orders, err := f.svc.ListAll(context.Background(), tt.filter)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, orders, 1)
		})
	}
}

func TestOrderService_ListForCustomer(t *testing.T) {
	t.Run("lists with normalised page", func(t *testing.T) {
		f := newFixture(t)
		f.orders.On("ListByCustomer", mock.Anything, "customer-1", model.PageParams{Limit: 10, Offset: 20}).
			Return([]model.Order{}, nil)

		orders, err := f.svc.ListForCustomer(context.Background(), " customer-1 ", model.PageParams{Offset: 20})

		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("blank customer rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.ListForCustomer(context.Background(), "  ", model.PageParams{})

		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("repository error", func(t *testing.T) {
		f := newFixture(t)
		f.orders.On("ListByCustomer", mock.Anything, "customer-1", mock.Anything).Return(nil, errors.New("database error"))

		_, err := f.svc.ListForCustomer(context.Background(), "customer-1", model.PageParams{})

		require.Error(t, err)
		assert.Empty(t, model.ErrorCode(err))
	})
}

func TestOrderService_Delete(t *testing.T) {
	t.Run("archives then deletes without touching stock", func(t *testing.T) {
		f := newFixture(t)
		order, items := storedOrder()

		f.orders.On("GetByID", mock.Anything, order.ID).Return(order, items, nil)
		f.products.On("GetByIDs", mock.Anything, []string{"10"}).Return([]model.Product{laptop()}, nil)
		f.archiver.On("Archive", mock.Anything, mock.MatchedBy(func(s *model.OrderResponse) bool {
			return s.ID == order.ID && len(s.Items) == 1
		})).Return(nil)
		f.orders.On("Delete", mock.Anything, order.ID).Return(true, nil)

		err := f.svc.Delete(context.Background(), order.ID)

		require.NoError(t, err)
		f.ledger.AssertNotCalled(t, "Restore", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, []string{events.TypeOrderDeleted}, f.publisher.types())
	})

	t.Run("archive failure aborts", func(t *testing.T) {
		f := newFixture(t)
		order, items := storedOrder()

		f.orders.On("GetByID", mock.Anything, order.ID).Return(order, items, nil)
		f.products.On("GetByIDs", mock.Anything, []string{"10"}).Return([]model.Product{laptop()}, nil)
		f.archiver.On("Archive", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		err := f.svc.Delete(context.Background(), order.ID)

		require.Error(t, err)
		f.orders.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		assert.Empty(t, f.publisher.events)
	})

	t.Run("missing order", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.orders.On("GetByID", mock.Anything, id).Return(nil, nil, nil)

		err := f.svc.Delete(context.Background(), id)

		assert.ErrorIs(t, err, model.ErrOrderNotFound)
		f.archiver.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
	})

	t.Run("row vanished before delete", func(t *testing.T) {
		f := newFixture(t)
		order, items := storedOrder()

		f.orders.On("GetByID", mock.Anything, order.ID).Return(order, items, nil)
		f.products.On("GetByIDs", mock.Anything, []string{"10"}).Return([]model.Product{laptop()}, nil)
		f.archiver.On("Archive", mock.Anything, mock.Anything).Return(nil)
		f.orders.On("Delete", mock.Anything, order.ID).Return(false, nil)

		err := f.svc.Delete(context.Background(), order.ID)

		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})
}
