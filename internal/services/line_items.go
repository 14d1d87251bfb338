package services

import (
	"bytes"
	"encoding/json"
	"math"

	"ordersvc/internal/models"

	"github.com/shopspring/decimal"
)

type rawItem struct {
	Product   json.RawMessage `json:"product"`
	Quantity  json.RawMessage `json:"quantity"`
	UnitPrice json.RawMessage `json:"unit_price"`
}

var (
	maxInt64    = decimal.NewFromInt(math.MaxInt64)
	maxQuantity = decimal.NewFromInt(math.MaxInt32)

	// Largest value a NUMERIC(12,2) column holds.
	maxAmount = decimal.RequireFromString("9999999999.99")
)

// NormalizeItems validates the submitted line items, coerces them to typed
// values and computes each subtotal and the order total. The first invalid
// item aborts normalization; there are no partial orders.
func NormalizeItems(raw []json.RawMessage) ([]models.NormalizedItem, decimal.Decimal, error) {
	if len(raw) == 0 {
		return nil, decimal.Zero, ErrItemsRequired
	}

	items := make([]models.NormalizedItem, 0, len(raw))
	total := decimal.Zero
	for i, r := range raw {
		item, err := normalizeItem(i, r)
		if err != nil {
			return nil, decimal.Zero, err
		}
		total = total.Add(item.Subtotal)
		if total.GreaterThan(maxAmount) {
			return nil, decimal.Zero, &ValidationError{Index: -1, Field: "items", Reason: "order total must not exceed " + maxAmount.StringFixed(2)}
		}
		items = append(items, item)
	}
	return items, total, nil
}

func normalizeItem(index int, data json.RawMessage) (models.NormalizedItem, error) {
	var item models.NormalizedItem

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return item, &ValidationError{Index: index, Field: "item", Reason: "must be an object"}
	}
	var r rawItem
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return item, &ValidationError{Index: index, Field: "item", Reason: "must be an object"}
	}

	if absent(r.Product) {
		return item, &ValidationError{Index: index, Field: "product", Reason: "is required"}
	}
	productID, err := parseNumber(r.Product)
	if err != nil || !productID.IsInteger() || !productID.IsPositive() || productID.GreaterThan(maxInt64) {
		return item, &ValidationError{Index: index, Field: "product", Reason: "must be a positive integer id"}
	}

	if absent(r.Quantity) {
		return item, &ValidationError{Index: index, Field: "quantity", Reason: "is required"}
	}
	quantity, err := parseNumber(r.Quantity)
	if err != nil || !quantity.IsInteger() || !quantity.IsPositive() || quantity.GreaterThan(maxQuantity) {
		return item, &ValidationError{Index: index, Field: "quantity", Reason: "must be a positive integer"}
	}

	if absent(r.UnitPrice) {
		return item, &ValidationError{Index: index, Field: "unit_price", Reason: "is required"}
	}
	unitPrice, err := parseNumber(r.UnitPrice)
	if err != nil || unitPrice.IsNegative() {
		return item, &ValidationError{Index: index, Field: "unit_price", Reason: "must be a non-negative number"}
	}
	if unitPrice.GreaterThan(maxAmount) {
		return item, &ValidationError{Index: index, Field: "unit_price", Reason: "must not exceed " + maxAmount.StringFixed(2)}
	}
	// price_per_item is NUMERIC(12,2); anything finer would be rounded on
	// insert and the stored items would no longer add up to the total.
	if !unitPrice.Equal(unitPrice.Round(2)) {
		return item, &ValidationError{Index: index, Field: "unit_price", Reason: "must have at most 2 decimal places"}
	}

	item.ProductID = productID.IntPart()
	item.Quantity = int(quantity.IntPart())
	item.UnitPrice = unitPrice
	item.Subtotal = unitPrice.Mul(quantity)
	if item.Subtotal.GreaterThan(maxAmount) {
		return item, &ValidationError{Index: index, Field: "unit_price", Reason: "quantity times unit_price must not exceed " + maxAmount.StringFixed(2)}
	}
	return item, nil
}

func absent(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// parseNumber accepts a JSON number or a string holding one.
func parseNumber(v json.RawMessage) (decimal.Decimal, error) {
	var d decimal.Decimal
	err := d.UnmarshalJSON(bytes.TrimSpace(v))
	return d, err
}
