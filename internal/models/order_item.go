package models

import (
	"github.com/shopspring/decimal"
)

// OrderItem is a stored line item. ProductName is a snapshot of the catalog
// name taken when the order was placed.
type OrderItem struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"order_id" db:"order_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"price_per_item"`
}

// NormalizedItem is a validated, typed line item ready to be written.
type NormalizedItem struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}
