package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"ordersvc/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var orderRowCols = []string{
	"id", "status", "total_amount", "created_at",
	"id", "product_name", "quantity", "price_per_item",
}

type OrderRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    OrderRepository
	ctx     context.Context
	ownerID int64
	now     time.Time
}

func (suite *OrderRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(suite.T(), err)
	suite.mock = mock
	suite.repo = NewOrderRepository(mock)
	suite.ctx = context.Background()
	suite.ownerID = 42
	suite.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (suite *OrderRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestOrderRepoTestSuite(t *testing.T) {
	suite.Run(t, new(OrderRepoTestSuite))
}

func (suite *OrderRepoTestSuite) TestInsertHeader_ReturnsGeneratedFields() {
	total := decimal.RequireFromString("26.00")

	suite.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders (user_id, total_amount, status)")).
		WithArgs(suite.ownerID, total, models.StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "status", "total_amount", "created_at"}).
			AddRow(int64(101), suite.ownerID, models.StatusPending, "26.00", suite.now))

	order, err := suite.repo.InsertHeader(suite.ctx, suite.mock, suite.ownerID, total, models.StatusPending)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(101), order.ID)
	assert.Equal(suite.T(), suite.ownerID, order.OwnerID)
	assert.Equal(suite.T(), models.StatusPending, order.Status)
	assert.True(suite.T(), order.TotalAmount.Equal(total))
	assert.Equal(suite.T(), suite.now, order.CreatedAt)
}

func (suite *OrderRepoTestSuite) TestInsertHeader_ConstraintViolation() {
	total := decimal.RequireFromString("-1.00")

	suite.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(suite.ownerID, total, models.StatusPending).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "violates check constraint"})

	_, err := suite.repo.InsertHeader(suite.ctx, suite.mock, suite.ownerID, total, models.StatusPending)
	require.Error(suite.T(), err)

	var se *StoreError
	require.True(suite.T(), errors.As(err, &se))
	assert.Equal(suite.T(), KindConstraint, se.Kind)
	assert.Equal(suite.T(), "23514", se.Code)
}

func (suite *OrderRepoTestSuite) TestInsertItem_SetsID() {
	item := &models.OrderItem{
		OrderID:     101,
		ProductName: "Widget",
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("10.50"),
	}

	suite.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items (order_id, product_name, quantity, price_per_item)")).
		WithArgs(item.OrderID, item.ProductName, item.Quantity, item.UnitPrice).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))

	err := suite.repo.InsertItem(suite.ctx, suite.mock, item)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(9), item.ID)
}

func (suite *OrderRepoTestSuite) TestInsertItem_ConnectionLost() {
	item := &models.OrderItem{OrderID: 101, ProductName: "Widget", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}

	suite.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(item.OrderID, item.ProductName, item.Quantity, item.UnitPrice).
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	err := suite.repo.InsertItem(suite.ctx, suite.mock, item)
	assert.True(suite.T(), IsKind(err, KindConnection))
}

func (suite *OrderRepoTestSuite) TestGetOrderRows_IsOwnerScoped() {
	suite.mock.ExpectQuery(regexp.QuoteMeta("WHERE o.id = $1 AND o.user_id = $2")).
		WithArgs(int64(5), suite.ownerID).
		WillReturnRows(pgxmock.NewRows(orderRowCols).
			AddRow(int64(5), models.StatusPending, "26.00", suite.now, int64Ptr(1), stringPtr("Widget"), intPtr(2), "10.50").
			AddRow(int64(5), models.StatusPending, "26.00", suite.now, int64Ptr(2), stringPtr("Gadget"), intPtr(1), "5.00"))

	rows, err := suite.repo.GetOrderRows(suite.ctx, suite.ownerID, 5)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 2)
	assert.True(suite.T(), rows[0].HasItem())
	assert.Equal(suite.T(), "Widget", *rows[0].ProductName)
	assert.Equal(suite.T(), 2, *rows[0].Quantity)
	assert.True(suite.T(), rows[0].UnitPrice.Valid)
	assert.Equal(suite.T(), "10.50", rows[0].UnitPrice.Decimal.StringFixed(2))
	assert.Equal(suite.T(), int64(2), *rows[1].ItemID)
}

func (suite *OrderRepoTestSuite) TestGetOrderRows_OrderWithoutItems() {
	suite.mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN order_items oi")).
		WithArgs(int64(6), suite.ownerID).
		WillReturnRows(pgxmock.NewRows(orderRowCols).
			AddRow(int64(6), models.StatusShipped, "0.00", suite.now, nil, nil, nil, nil))

	rows, err := suite.repo.GetOrderRows(suite.ctx, suite.ownerID, 6)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	assert.False(suite.T(), rows[0].HasItem())
	assert.False(suite.T(), rows[0].UnitPrice.Valid)
}

func (suite *OrderRepoTestSuite) TestGetOrderRows_NoMatch() {
	suite.mock.ExpectQuery(regexp.QuoteMeta("WHERE o.id = $1 AND o.user_id = $2")).
		WithArgs(int64(999), suite.ownerID).
		WillReturnRows(pgxmock.NewRows(orderRowCols))

	rows, err := suite.repo.GetOrderRows(suite.ctx, suite.ownerID, 999)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), rows)
}

func (suite *OrderRepoTestSuite) TestListOrderRows_PagesOverOrders() {
	suite.mock.ExpectQuery(regexp.QuoteMeta("ORDER BY o.created_at DESC, o.id DESC, oi.id ASC")).
		WithArgs(suite.ownerID, 10, 20).
		WillReturnRows(pgxmock.NewRows(orderRowCols))

	_, err := suite.repo.ListOrderRows(suite.ctx, suite.ownerID, 10, 20)
	assert.NoError(suite.T(), err)
}

func (suite *OrderRepoTestSuite) TestListOrderRows_ZeroLimitMeansAll() {
	suite.mock.ExpectQuery(regexp.QuoteMeta("LIMIT $2 OFFSET $3")).
		WithArgs(suite.ownerID, nil, 0).
		WillReturnRows(pgxmock.NewRows(orderRowCols).
			AddRow(int64(2), models.StatusPending, "5.00", suite.now, int64Ptr(3), stringPtr("Gadget"), intPtr(1), "5.00").
			AddRow(int64(1), models.StatusPending, "7.00", suite.now.Add(-time.Hour), int64Ptr(1), stringPtr("Widget"), intPtr(1), "7.00"))

	rows, err := suite.repo.ListOrderRows(suite.ctx, suite.ownerID, 0, -5)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 2)
	assert.Equal(suite.T(), int64(2), rows[0].OrderID)
}

func (suite *OrderRepoTestSuite) TestListOrderRows_QueryError() {
	suite.mock.ExpectQuery(regexp.QuoteMeta("FROM orders o")).
		WithArgs(suite.ownerID, nil, 0).
		WillReturnError(errors.New("syntax error"))

	_, err := suite.repo.ListOrderRows(suite.ctx, suite.ownerID, 0, 0)
	assert.True(suite.T(), IsKind(err, KindQuery))
}

func (suite *OrderRepoTestSuite) TestUpdateStatus() {
	suite.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = $1 WHERE id = $2 AND user_id = $3")).
		WithArgs(models.StatusShipped, int64(5), suite.ownerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status")).
		WithArgs(models.StatusShipped, int64(6), suite.ownerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	updated, err := suite.repo.UpdateStatus(suite.ctx, suite.ownerID, 5, models.StatusShipped)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), updated)

	updated, err = suite.repo.UpdateStatus(suite.ctx, suite.ownerID, 6, models.StatusShipped)
	require.NoError(suite.T(), err)
	assert.False(suite.T(), updated)
}

func (suite *OrderRepoTestSuite) TestDelete_ForeignOrderIsNotDeleted() {
	suite.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders WHERE id = $1 AND user_id = $2")).
		WithArgs(int64(5), suite.ownerID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := suite.repo.Delete(suite.ctx, suite.ownerID, 5)
	require.NoError(suite.T(), err)
	assert.False(suite.T(), deleted)
}

func (suite *OrderRepoTestSuite) TestDelete_Canceled() {
	suite.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders")).
		WithArgs(int64(5), suite.ownerID).
		WillReturnError(context.Canceled)

	_, err := suite.repo.Delete(suite.ctx, suite.ownerID, 5)
	assert.True(suite.T(), IsKind(err, KindCanceled))
	assert.ErrorIs(suite.T(), err, context.Canceled)
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }
