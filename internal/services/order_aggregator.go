package services

import (
	"fmt"

	"ordersvc/internal/models"
)

// AggregateOrders folds flat order/item join rows into nested orders. Orders
// appear in the order their id was first seen, so the query's ORDER BY is
// preserved; each order's items keep row order. Rows for an order are not
// required to be contiguous.
func AggregateOrders(rows []*models.OrderRow) []*models.OrderWithItems {
	orders := make([]*models.OrderWithItems, 0)
	index := make(map[int64]int)

	for _, row := range rows {
		pos, seen := index[row.OrderID]
		if !seen {
			pos = len(orders)
			index[row.OrderID] = pos
			orders = append(orders, &models.OrderWithItems{
				ID:          row.OrderID,
				Status:      row.Status,
				TotalAmount: models.NewAmount(row.TotalAmount),
				CreatedAt:   row.CreatedAt,
				Items:       make([]*models.OrderItemView, 0),
			})
		}
		if item := itemView(row); item != nil {
			orders[pos].Items = append(orders[pos].Items, item)
		}
	}
	return orders
}

// AggregateOrder builds a single order from rows already filtered to one
// order id and owner. No rows at all means the order does not exist for this
// owner; a row without item columns is an order with no items.
func AggregateOrder(rows []*models.OrderRow) (*models.OrderWithItems, error) {
	if len(rows) == 0 {
		return nil, ErrOrderNotFound
	}
	orders := AggregateOrders(rows)
	if len(orders) != 1 {
		return nil, fmt.Errorf("aggregate order: rows span %d orders", len(orders))
	}
	return orders[0], nil
}

func itemView(row *models.OrderRow) *models.OrderItemView {
	if !row.HasItem() {
		return nil
	}
	item := &models.OrderItemView{ID: *row.ItemID}
	if row.ProductName != nil {
		item.ProductName = *row.ProductName
	}
	if row.Quantity != nil {
		item.Quantity = *row.Quantity
	}
	if row.UnitPrice.Valid {
		item.UnitPrice = models.NewAmount(row.UnitPrice.Decimal)
	}
	return item
}
