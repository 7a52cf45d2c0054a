package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order represents a purchase order.
type Order struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	CustomerID        *string         `json:"customerId,omitempty" db:"customer_id"`
	RecipientName     string          `json:"recipientName" db:"recipient_name"`
	RecipientPhone    string          `json:"recipientPhone" db:"recipient_phone"`
	RecipientAddress  string          `json:"recipientAddress" db:"recipient_address"`
	Total             decimal.Decimal `json:"total" db:"total_amount"`
	Currency          string          `json:"currency" db:"currency"`
	EducationDiscount decimal.Decimal `json:"educationDiscount" db:"education_discount"`
	PaymentMethod     string          `json:"paymentMethod" db:"payment_method"`
	Note              string          `json:"note" db:"note"`
	Status            OrderStatus     `json:"status" db:"status"`
	IdempotencyKey    *string         `json:"-" db:"idempotency_key"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// OrderItem represents a line item in an order. UnitPrice is captured when
// the order is placed and never recomputed.
type OrderItem struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OrderID   uuid.UUID       `json:"orderId" db:"order_id"`
	ProductID string          `json:"productId" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice" db:"unit_price"`
	LineTotal decimal.Decimal `json:"lineTotal" db:"line_total"`
}

// OrderRequest represents the request payload for creating an order.
type OrderRequest struct {
	RecipientName     string             `json:"recipientName" validate:"required,max=255"`
	RecipientPhone    string             `json:"recipientPhone" validate:"required,max=32"`
	RecipientAddress  string             `json:"recipientAddress" validate:"required,max=500"`
	Items             []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Total             *decimal.Decimal   `json:"total,omitempty"`
	EducationDiscount *decimal.Decimal   `json:"educationDiscount,omitempty"`
	PaymentMethod     string             `json:"paymentMethod" validate:"max=50"`
	Currency          string             `json:"currency" validate:"omitempty,len=3,alpha"`
	Note              string             `json:"note" validate:"max=1000"`

	// Set by the transport layer, never decoded from the body.
	CustomerID     *string `json:"-"`
	IdempotencyKey string  `json:"-"`
}

// OrderItemRequest represents a single item in an order request.
type OrderItemRequest struct {
	ProductID string           `json:"productId" validate:"required,max=50"`
	Quantity  int              `json:"quantity" validate:"max=1000000"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

// OrderItemView is an order item decorated with the product label.
type OrderItemView struct {
	OrderItem
	ProductName string `json:"productName"`
}

// OrderResponse represents an order with its items.
type OrderResponse struct {
	Order
	Items []OrderItemView `json:"items"`
}

// StatusUpdateRequest is the payload for changing an order's status.
type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

// OrderFieldsUpdate holds the mutable non-stock fields of an order. Nil
// fields are left untouched.
type OrderFieldsUpdate struct {
	RecipientName    *string `json:"recipientName,omitempty" validate:"omitempty,max=255"`
	RecipientPhone   *string `json:"recipientPhone,omitempty" validate:"omitempty,max=32"`
	RecipientAddress *string `json:"recipientAddress,omitempty" validate:"omitempty,max=500"`
	Note             *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

// Empty reports whether no field is set.
func (u OrderFieldsUpdate) Empty() bool {
	return u.RecipientName == nil && u.RecipientPhone == nil && u.RecipientAddress == nil && u.Note == nil
}

// PageParams controls list pagination.
type PageParams struct {
	Limit  int
	Offset int
}

// OrderFilter narrows an administrative order listing.
type OrderFilter struct {
	Page   PageParams
	Status *OrderStatus
}
