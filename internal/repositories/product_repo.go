package repositories

import (
	"context"
)

// ProductRepository resolves catalog names for order line items. Lookups run
// on the caller's Querier so they observe the same transaction as the order
// being written.
type ProductRepository interface {
	ResolveNames(ctx context.Context, q Querier, ids []int64) (map[int64]string, error)
}

type productRepo struct{}

func NewProductRepository() ProductRepository {
	return &productRepo{}
}

// ResolveNames looks up all ids in one round trip. Ids missing from the
// returned map do not exist in the catalog.
func (r *productRepo) ResolveNames(ctx context.Context, q Querier, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := q.Query(ctx, `SELECT id, name FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, storeError("resolve product names", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, storeError("resolve product names", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("resolve product names", err)
	}
	return names, nil
}
