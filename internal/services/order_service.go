package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"ordersvc/internal/caching"
	"ordersvc/internal/events"
	"ordersvc/internal/models"
	"ordersvc/internal/repositories"
	"ordersvc/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PlaceholderProductName is stored for line items whose product no longer
// exists in the catalog.
const PlaceholderProductName = "Unknown Product"

// OrderServiceInterface defines the interface for order service operations
type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, ownerID int64, items []json.RawMessage) (*models.CreatedOrder, error)
	GetOrder(ctx context.Context, ownerID, orderID int64) (*models.OrderWithItems, error)
	ListOrders(ctx context.Context, ownerID int64, limit, offset int) ([]*models.OrderWithItems, error)
	UpdateOrderStatus(ctx context.Context, ownerID, orderID int64, status models.Status) error
	DeleteOrder(ctx context.Context, ownerID, orderID int64) error
}

type orderService struct {
	pool        database.ConnPool
	orderRepo   repositories.OrderRepository
	productRepo repositories.ProductRepository
	cache       caching.OrderCache
	publisher   events.Publisher
	log         *slog.Logger
}

// NewOrderService creates a new order service instance. cache and publisher
// may be nil, in which case no-op implementations are used.
func NewOrderService(
	pool database.ConnPool,
	orderRepo repositories.OrderRepository,
	productRepo repositories.ProductRepository,
	cache caching.OrderCache,
	publisher events.Publisher,
	logger *slog.Logger,
) OrderServiceInterface {
	if cache == nil {
		cache = caching.NewNopCache()
	}
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &orderService{
		pool:        pool,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		cache:       cache,
		publisher:   publisher,
		log:         logger,
	}
}

// CreateOrder writes the order header and all of its items in one
// transaction on a dedicated connection. Either everything is committed or
// nothing is, and the connection goes back to the pool exactly once on every
// path.
func (s *orderService) CreateOrder(ctx context.Context, ownerID int64, items []json.RawMessage) (*models.CreatedOrder, error) {
	normalized, total, err := NormalizeItems(items)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.log.Error("failed to acquire database connection", "owner_id", ownerID, "error", err)
		return nil, &ResourceError{Op: "acquire connection", Err: err}
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, s.txFailure(ownerID, StageBegin, -1, err)
	}

	order, stage, index, err := s.writeOrder(ctx, tx, ownerID, normalized, total)
	if err != nil {
		s.rollback(ctx, tx, ownerID)
		return nil, s.txFailure(ownerID, stage, index, err)
	}

	// A failed commit has already ended the transaction; there is nothing
	// left to roll back.
	if err := tx.Commit(ctx); err != nil {
		return nil, s.txFailure(ownerID, StageCommit, -1, err)
	}

	s.log.Info("order created", "order_id", order.ID, "owner_id", ownerID,
		"items", len(normalized), "total_amount", total.StringFixed(2))

	created := &models.CreatedOrder{
		ID:          order.ID,
		Status:      order.Status,
		TotalAmount: models.NewAmount(order.TotalAmount),
		CreatedAt:   order.CreatedAt,
		Items:       items,
	}
	s.afterCommit(ctx, ownerID, created)
	return created, nil
}

// writeOrder runs every statement of the create inside tx and reports the
// stage (and item index) of the first failure.
func (s *orderService) writeOrder(ctx context.Context, tx pgx.Tx, ownerID int64, items []models.NormalizedItem, total decimal.Decimal) (*models.Order, Stage, int, error) {
	order, err := s.orderRepo.InsertHeader(ctx, tx, ownerID, total, models.StatusPending)
	if err != nil {
		return nil, StageInsertHeader, -1, err
	}

	names, err := s.productRepo.ResolveNames(ctx, tx, distinctProductIDs(items))
	if err != nil {
		return nil, StageResolveProducts, -1, err
	}

	for i, item := range items {
		name, ok := names[item.ProductID]
		if !ok {
			s.log.Warn("product not found, storing placeholder name",
				"order_id", order.ID, "product_id", item.ProductID, "item_index", i)
			name = PlaceholderProductName
		}

		row := &models.OrderItem{
			OrderID:     order.ID,
			ProductName: name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
		if err := s.orderRepo.InsertItem(ctx, tx, row); err != nil {
			return nil, StageInsertItem, i, err
		}
	}
	return order, "", -1, nil
}

// rollback must run even when ctx has been canceled, otherwise the
// connection would be released with the transaction still open.
func (s *orderService) rollback(ctx context.Context, tx pgx.Tx, ownerID int64) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error("failed to roll back order transaction", "owner_id", ownerID, "error", err)
	}
}

func (s *orderService) txFailure(ownerID int64, stage Stage, index int, err error) *TransactionError {
	kind := repositories.KindQuery
	var se *repositories.StoreError
	if errors.As(err, &se) {
		kind = se.Kind
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = repositories.KindCanceled
	}

	attrs := []any{"owner_id", ownerID, "stage", string(stage), "kind", kind.String(), "error", err}
	if stage == StageInsertItem {
		attrs = append(attrs, "item_index", index)
	}

	switch kind {
	case repositories.KindConnection:
		s.log.Error("order transaction lost its connection", attrs...)
	case repositories.KindConstraint:
		s.log.Warn("order rejected by constraint", attrs...)
	case repositories.KindCanceled:
		s.log.Info("order creation canceled", attrs...)
	case repositories.KindQuery:
		s.log.Error("order transaction failed", attrs...)
	}

	return &TransactionError{Stage: stage, Index: index, Kind: kind, Err: err}
}

// afterCommit refreshes derived state. The order is already durable, so
// failures here are logged and never returned.
func (s *orderService) afterCommit(ctx context.Context, ownerID int64, order *models.CreatedOrder) {
	if err := s.cache.InvalidateOwner(ctx, ownerID); err != nil {
		s.log.Warn("failed to invalidate order cache", "owner_id", ownerID, "error", err)
	}
	if err := s.publisher.PublishOrderCreated(ctx, ownerID, order); err != nil {
		s.log.Warn("failed to publish order created event", "order_id", order.ID, "error", err)
	}
}

func (s *orderService) GetOrder(ctx context.Context, ownerID, orderID int64) (*models.OrderWithItems, error) {
	gen, cacheable := s.cacheGeneration(ctx, ownerID)
	if cacheable {
		if cached, ok, err := s.cache.GetOrder(ctx, ownerID, gen, orderID); err != nil {
			s.log.Warn("order cache read failed", "owner_id", ownerID, "order_id", orderID, "error", err)
		} else if ok {
			return cached, nil
		}
	}

	rows, err := s.orderRepo.GetOrderRows(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}
	order, err := AggregateOrder(rows)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.SetOrder(ctx, ownerID, gen, order); err != nil {
			s.log.Warn("order cache write failed", "owner_id", ownerID, "order_id", orderID, "error", err)
		}
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, ownerID int64, limit, offset int) ([]*models.OrderWithItems, error) {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	gen, cacheable := s.cacheGeneration(ctx, ownerID)
	if cacheable {
		if cached, ok, err := s.cache.GetOrderList(ctx, ownerID, gen, limit, offset); err != nil {
			s.log.Warn("order list cache read failed", "owner_id", ownerID, "error", err)
		} else if ok {
			return cached, nil
		}
	}

	rows, err := s.orderRepo.ListOrderRows(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	orders := AggregateOrders(rows)

	if cacheable {
		if err := s.cache.SetOrderList(ctx, ownerID, gen, limit, offset, orders); err != nil {
			s.log.Warn("order list cache write failed", "owner_id", ownerID, "error", err)
		}
	}
	return orders, nil
}

// cacheGeneration must be read before the database query. Without it the
// cache is bypassed for this request.
func (s *orderService) cacheGeneration(ctx context.Context, ownerID int64) (int64, bool) {
	gen, err := s.cache.Generation(ctx, ownerID)
	if err != nil {
		s.log.Warn("order cache generation read failed", "owner_id", ownerID, "error", err)
		return 0, false
	}
	return gen, true
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, ownerID, orderID int64, status models.Status) error {
	if !status.Valid() {
		return &ValidationError{Index: -1, Field: "status", Reason: "must be one of Pending, Processing, Shipped, Delivered, Cancelled"}
	}

	updated, err := s.orderRepo.UpdateStatus(ctx, ownerID, orderID, status)
	if err != nil {
		return err
	}
	if !updated {
		return ErrOrderNotFound
	}

	s.log.Info("order status updated", "order_id", orderID, "owner_id", ownerID, "status", string(status))
	s.invalidate(ctx, ownerID)
	return nil
}

func (s *orderService) DeleteOrder(ctx context.Context, ownerID, orderID int64) error {
	deleted, err := s.orderRepo.Delete(ctx, ownerID, orderID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrOrderNotFound
	}

	s.log.Info("order deleted", "order_id", orderID, "owner_id", ownerID)
	s.invalidate(ctx, ownerID)
	return nil
}

func (s *orderService) invalidate(ctx context.Context, ownerID int64) {
	if err := s.cache.InvalidateOwner(ctx, ownerID); err != nil {
		s.log.Warn("failed to invalidate order cache", "owner_id", ownerID, "error", err)
	}
}

func distinctProductIDs(items []models.NormalizedItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
