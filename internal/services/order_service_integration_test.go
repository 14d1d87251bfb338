package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"ordersvc/internal/models"
	"ordersvc/internal/repositories"
	"ordersvc/internal/services"
	"ordersvc/pkg/database"
	"ordersvc/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationService(t *testing.T) (services.OrderServiceInterface, *testhelpers.TestDB) {
	tdb := testhelpers.SetupTestDB(t, database.Options{MaxConns: 4})
	svc := services.NewOrderService(
		tdb.Pool,
		repositories.NewOrderRepository(tdb.Pool),
		repositories.NewProductRepository(),
		nil,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, tdb
}

func TestIntegration_CreateAndReadBack(t *testing.T) {
	svc, tdb := newIntegrationService(t)
	ctx := context.Background()

	widget := testhelpers.SeedProduct(t, tdb, "Widget")
	missing := widget + 1000

	items := []json.RawMessage{
		json.RawMessage(`{"product": ` + jsonInt(widget) + `, "quantity": 2, "unit_price": 10.50}`),
		json.RawMessage(`{"product": ` + jsonInt(missing) + `, "quantity": 1, "unit_price": 5.00}`),
	}

	created, err := svc.CreateOrder(ctx, 1, items)
	require.NoError(t, err)
	assert.Equal(t, "26.00", created.TotalAmount.StringFixed(2))
	assert.Equal(t, models.StatusPending, created.Status)

	order, err := svc.GetOrder(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Widget", order.Items[0].ProductName)
	assert.Equal(t, services.PlaceholderProductName, order.Items[1].ProductName)

	_, err = svc.GetOrder(ctx, 2, created.ID)
	assert.ErrorIs(t, err, services.ErrOrderNotFound, "another user must not see the order")

	assert.ErrorIs(t, svc.DeleteOrder(ctx, 2, created.ID), services.ErrOrderNotFound)
	require.NoError(t, svc.DeleteOrder(ctx, 1, created.ID))
	assert.Zero(t, testhelpers.CountRows(t, tdb, "order_items"))
}

func TestIntegration_FailedCreateLeavesNothing(t *testing.T) {
	svc, tdb := newIntegrationService(t)
	ctx := context.Background()

	widget := testhelpers.SeedProduct(t, tdb, "Widget")
	rejected := testhelpers.SeedProduct(t, tdb, "Rejected")

	// The second item insert fails after the header is already written.
	_, err := tdb.Pool.Exec(ctx, `ALTER TABLE order_items ADD CONSTRAINT reject_item CHECK (product_name <> 'Rejected')`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = tdb.Pool.Exec(context.Background(), `ALTER TABLE order_items DROP CONSTRAINT IF EXISTS reject_item`)
	})

	items := []json.RawMessage{
		json.RawMessage(`{"product": ` + jsonInt(widget) + `, "quantity": 1, "unit_price": 1.00}`),
		json.RawMessage(`{"product": ` + jsonInt(rejected) + `, "quantity": 1, "unit_price": 1.00}`),
	}

	_, err = svc.CreateOrder(ctx, 1, items)

	var txErr *services.TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, services.StageInsertItem, txErr.Stage)
	assert.Equal(t, 1, txErr.Index)
	assert.Zero(t, testhelpers.CountRows(t, tdb, "orders"))
	assert.Zero(t, testhelpers.CountRows(t, tdb, "order_items"))
	assert.Zero(t, tdb.Pool.Stats().AcquiredConns)
}

func TestIntegration_OversizedPriceIsValidationError(t *testing.T) {
	svc, tdb := newIntegrationService(t)

	items := []json.RawMessage{json.RawMessage(`{"product": 1, "quantity": 1, "unit_price": 99999999999.00}`)}

	_, err := svc.CreateOrder(context.Background(), 1, items)

	var ve *services.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Zero(t, testhelpers.CountRows(t, tdb, "orders"))
}

func TestIntegration_ListNewestFirst(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	item := []json.RawMessage{json.RawMessage(`{"product": 1, "quantity": 1, "unit_price": 1}`)}
	first, err := svc.CreateOrder(ctx, 7, item)
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, 7, item)
	require.NoError(t, err)

	orders, err := svc.ListOrders(ctx, 7, 0, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)

	page, err := svc.ListOrders(ctx, 7, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	none, err := svc.ListOrders(ctx, 8, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
