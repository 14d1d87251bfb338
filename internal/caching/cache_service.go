package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ordersvc/internal/models"

	"github.com/redis/go-redis/v9"
)

// OrderCache holds owner-scoped order views. Every key embeds the owner id,
// so one owner's entries can never answer another owner's read.
//
// Entries are also keyed by the owner's generation. Writers bump it with
// InvalidateOwner, which makes every older entry unreachable at once. A
// reader fetches the generation before querying the database and stores
// its result under that generation, so a result computed before a
// concurrent write lands under a key nobody reads any more.
type OrderCache interface {
	Generation(ctx context.Context, ownerID int64) (int64, error)
	GetOrder(ctx context.Context, ownerID, gen, orderID int64) (*models.OrderWithItems, bool, error)
	SetOrder(ctx context.Context, ownerID, gen int64, order *models.OrderWithItems) error
	GetOrderList(ctx context.Context, ownerID, gen int64, limit, offset int) ([]*models.OrderWithItems, bool, error)
	SetOrderList(ctx context.Context, ownerID, gen int64, limit, offset int, orders []*models.OrderWithItems) error
	InvalidateOwner(ctx context.Context, ownerID int64) error
	Ping(ctx context.Context) error
}

const keyPrefix = "ordersvc:orders"

type redisCacheService struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedisCacheService(addr, password string, db int, ttl time.Duration, logger *slog.Logger) OrderCache {
	// Accept redis://host:port as well as host:port
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		logger.Warn("redis ping failed on initialization", "addr", parsedAddr, "error", pingErr)
	} else {
		logger.Debug("redis connection established", "addr", parsedAddr)
	}

	return NewOrderCache(client, ttl, logger)
}

// NewOrderCache wraps an existing client. ttl bounds how long a status
// change made outside this service can go unnoticed.
func NewOrderCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) OrderCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCacheService{client: client, ttl: ttl, log: logger}
}

func generationKey(ownerID int64) string {
	return fmt.Sprintf("%s:%d:gen", keyPrefix, ownerID)
}

func orderKey(ownerID, gen, orderID int64) string {
	return fmt.Sprintf("%s:%d:g%d:order:%d", keyPrefix, ownerID, gen, orderID)
}

func listKey(ownerID, gen int64, limit, offset int) string {
	return fmt.Sprintf("%s:%d:g%d:list:%d:%d", keyPrefix, ownerID, gen, limit, offset)
}

// Generation returns the owner's current generation; 0 until the first
// invalidation.
func (r *redisCacheService) Generation(ctx context.Context, ownerID int64) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *redisCacheService) GetOrder(ctx context.Context, ownerID, gen, orderID int64) (*models.OrderWithItems, bool, error) {
	var order models.OrderWithItems
	found, err := r.get(ctx, orderKey(ownerID, gen, orderID), &order)
	if !found || err != nil {
		return nil, false, err
	}
	return &order, true, nil
}

func (r *redisCacheService) SetOrder(ctx context.Context, ownerID, gen int64, order *models.OrderWithItems) error {
	return r.set(ctx, orderKey(ownerID, gen, order.ID), order)
}

func (r *redisCacheService) GetOrderList(ctx context.Context, ownerID, gen int64, limit, offset int) ([]*models.OrderWithItems, bool, error) {
	var orders []*models.OrderWithItems
	found, err := r.get(ctx, listKey(ownerID, gen, limit, offset), &orders)
	if !found || err != nil {
		return nil, false, err
	}
	if orders == nil {
		orders = make([]*models.OrderWithItems, 0)
	}
	return orders, true, nil
}

func (r *redisCacheService) SetOrderList(ctx context.Context, ownerID, gen int64, limit, offset int, orders []*models.OrderWithItems) error {
	return r.set(ctx, listKey(ownerID, gen, limit, offset), orders)
}

// InvalidateOwner moves the owner to a new generation. Entries of older
// generations are never read again and expire with their TTL.
func (r *redisCacheService) InvalidateOwner(ctx context.Context, ownerID int64) error {
	return r.client.Incr(ctx, generationKey(ownerID)).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCacheService) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // cache miss
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		r.log.Warn("discarding unreadable cache entry", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (r *redisCacheService) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

type nopCache struct{}

// NewNopCache returns a cache that never stores anything. It is used when
// Redis is not configured.
func NewNopCache() OrderCache {
	return nopCache{}
}

func (nopCache) Generation(context.Context, int64) (int64, error) {
	return 0, nil
}

func (nopCache) GetOrder(context.Context, int64, int64, int64) (*models.OrderWithItems, bool, error) {
	return nil, false, nil
}

func (nopCache) SetOrder(context.Context, int64, int64, *models.OrderWithItems) error {
	return nil
}

func (nopCache) GetOrderList(context.Context, int64, int64, int, int) ([]*models.OrderWithItems, bool, error) {
	return nil, false, nil
}

func (nopCache) SetOrderList(context.Context, int64, int64, int, int, []*models.OrderWithItems) error {
	return nil
}

func (nopCache) InvalidateOwner(context.Context, int64) error {
	return nil
}

func (nopCache) Ping(context.Context) error {
	return nil
}
