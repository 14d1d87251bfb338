package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. The order service only ever
// assigns StatusPending; the rest are set by downstream processes.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// Valid reports whether s is one of the known order statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Order is the order header row.
type Order struct {
	ID          int64           `json:"id" db:"id"`
	OwnerID     int64           `json:"user_id" db:"user_id"`
	Status      Status          `json:"status" db:"status"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// CreatedOrder is returned to the caller after a successful create. Items are
// echoed back exactly as they were submitted.
type CreatedOrder struct {
	ID          int64             `json:"id"`
	Status      Status            `json:"status"`
	TotalAmount Amount            `json:"total_amount"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []json.RawMessage `json:"items"`
}

// OrderWithItems is the nested read view of an order.
type OrderWithItems struct {
	ID          int64            `json:"id"`
	Status      Status           `json:"status"`
	TotalAmount Amount           `json:"total_amount"`
	CreatedAt   time.Time        `json:"created_at"`
	Items       []*OrderItemView `json:"items"`
}

type OrderItemView struct {
	ID          int64  `json:"id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Amount `json:"unit_price"`
}

// OrderRow is a single row of the orders LEFT JOIN order_items query. The
// item columns are all NULL for an order without items.
type OrderRow struct {
	OrderID     int64
	Status      Status
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
	ItemID      *int64
	ProductName *string
	Quantity    *int
	UnitPrice   decimal.NullDecimal
}

// HasItem reports whether the row carries item columns.
func (r *OrderRow) HasItem() bool {
	return r.ItemID != nil
}
