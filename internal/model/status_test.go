package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected OrderStatus
		wantErr  bool
	}{
		{input: "pending", expected: StatusPending},
		{input: " Canceled ", expected: StatusCanceled},
		{input: "SHIPPING", expected: StatusShipping},
		{input: "cancelled", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			status, err := ParseOrderStatus(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCanceled, true},
		{StatusPending, StatusShipping, false},
		{StatusConfirmed, StatusShipping, true},
		{StatusConfirmed, StatusCanceled, true},
		{StatusShipping, StatusCompleted, true},
		{StatusShipping, StatusCanceled, true},
		{StatusShipping, StatusPending, false},
		{StatusCompleted, StatusCanceled, false},
		{StatusCanceled, StatusConfirmed, false},
		{StatusCanceled, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, StatusShipping.Terminal())
}

func TestDomainError_Is(t *testing.T) {
	specific := NewDomainError(ErrCodeProductNotFound, "product P009 not found")
	wrapped := fmt.Errorf("failed to create order: %w", specific)

	assert.True(t, errors.Is(wrapped, ErrProductNotFound))
	assert.False(t, errors.Is(wrapped, ErrOrderNotFound))
	assert.Equal(t, ErrCodeProductNotFound, ErrorCode(wrapped))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
}
