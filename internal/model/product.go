package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalogue product with its stock level.
type Product struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Category      string          `json:"category" db:"category"`
	StockQuantity int             `json:"stockQuantity" db:"stock_quantity"`
	Availability  Availability    `json:"availability" db:"availability"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
}

// StockLevel is the mutable inventory slice of a product row.
type StockLevel struct {
	ProductID    string
	Quantity     int
	Availability Availability
}
