package repositories

import (
	"context"

	"ordersvc/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type OrderRepository interface {
	InsertHeader(ctx context.Context, q Querier, ownerID int64, total decimal.Decimal, status models.Status) (*models.Order, error)
	InsertItem(ctx context.Context, q Querier, item *models.OrderItem) error
	GetOrderRows(ctx context.Context, ownerID, orderID int64) ([]*models.OrderRow, error)
	ListOrderRows(ctx context.Context, ownerID int64, limit, offset int) ([]*models.OrderRow, error)
	UpdateStatus(ctx context.Context, ownerID, orderID int64, status models.Status) (bool, error)
	Delete(ctx context.Context, ownerID, orderID int64) (bool, error)
}

type orderRepo struct {
	db Querier
}

// NewOrderRepository returns a repository whose read and single-statement
// write methods run on db. InsertHeader and InsertItem run on the Querier
// they are given.
func NewOrderRepository(db Querier) OrderRepository {
	return &orderRepo{db: db}
}

const orderRowColumns = `
		o.id, o.status, o.total_amount, o.created_at,
		oi.id, oi.product_name, oi.quantity, oi.price_per_item`

func (r *orderRepo) InsertHeader(ctx context.Context, q Querier, ownerID int64, total decimal.Decimal, status models.Status) (*models.Order, error) {
	query := `
		INSERT INTO orders (user_id, total_amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, status, total_amount, created_at
	`
	order := &models.Order{}
	err := q.QueryRow(ctx, query, ownerID, total, status).Scan(&order.ID, &order.OwnerID, &order.Status, &order.TotalAmount, &order.CreatedAt)
	if err != nil {
		return nil, storeError("insert order header", err)
	}
	return order, nil
}

func (r *orderRepo) InsertItem(ctx context.Context, q Querier, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_name, quantity, price_per_item)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := q.QueryRow(ctx, query, item.OrderID, item.ProductName, item.Quantity, item.UnitPrice).Scan(&item.ID)
	return storeError("insert order item", err)
}

func (r *orderRepo) GetOrderRows(ctx context.Context, ownerID, orderID int64) ([]*models.OrderRow, error) {
	query := `
		SELECT` + orderRowColumns + `
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.id = $1 AND o.user_id = $2
		ORDER BY oi.id ASC
	`
	rows, err := r.db.Query(ctx, query, orderID, ownerID)
	if err != nil {
		return nil, storeError("get order", err)
	}
	return scanOrderRows(rows, "get order")
}

// ListOrderRows pages over orders, not joined rows, so an order's items are
// never split across pages. limit <= 0 returns every order.
func (r *orderRepo) ListOrderRows(ctx context.Context, ownerID int64, limit, offset int) ([]*models.OrderRow, error) {
	query := `
		SELECT` + orderRowColumns + `
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id = $1 AND o.id IN (
			SELECT id FROM orders
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3
		)
		ORDER BY o.created_at DESC, o.id DESC, oi.id ASC
	`
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, query, ownerID, limitArg, offset)
	if err != nil {
		return nil, storeError("list orders", err)
	}
	return scanOrderRows(rows, "list orders")
}

func (r *orderRepo) UpdateStatus(ctx context.Context, ownerID, orderID int64, status models.Status) (bool, error) {
	query := `UPDATE orders SET status = $1 WHERE id = $2 AND user_id = $3`
	tag, err := r.db.Exec(ctx, query, status, orderID, ownerID)
	if err != nil {
		return false, storeError("update order status", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the order; order_items go with it through ON DELETE CASCADE.
func (r *orderRepo) Delete(ctx context.Context, ownerID, orderID int64) (bool, error) {
	query := `DELETE FROM orders WHERE id = $1 AND user_id = $2`
	tag, err := r.db.Exec(ctx, query, orderID, ownerID)
	if err != nil {
		return false, storeError("delete order", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanOrderRows(rows pgx.Rows, op string) ([]*models.OrderRow, error) {
	defer rows.Close()

	var out []*models.OrderRow
	for rows.Next() {
		row := &models.OrderRow{}
		if err := rows.Scan(&row.OrderID, &row.Status, &row.TotalAmount, &row.CreatedAt,
			&row.ItemID, &row.ProductName, &row.Quantity, &row.UnitPrice); err != nil {
			return nil, storeError(op, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(op, err)
	}
	return out, nil
}
