package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"ordersvc/db"
	"ordersvc/pkg/database"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *database.Pool
	Cleanup func()
}

// SetupTestDB connects to TEST_DATABASE_URL, applies the schema and empties
// the order tables. The test is skipped when the variable is not set.
func SetupTestDB(t *testing.T, opts database.Options) *TestDB {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, connString, opts)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		pool.Close()
		t.Fatalf("Failed to apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE order_items, orders, products RESTART IDENTITY CASCADE`); err != nil {
		pool.Close()
		t.Fatalf("Failed to truncate tables: %v", err)
	}

	tdb := &TestDB{Pool: pool, Cleanup: pool.Close}
	t.Cleanup(tdb.Cleanup)
	return tdb
}

// SeedProduct inserts a catalog product and returns its id.
func SeedProduct(t *testing.T, tdb *TestDB, name string) int64 {
	t.Helper()

	var id int64
	err := tdb.Pool.QueryRow(context.Background(),
		`INSERT INTO products (name, price) VALUES ($1, 0) RETURNING id`, name).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test product: %v", err)
	}
	return id
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, tdb *TestDB, table string) int {
	t.Helper()

	var n int
	if err := tdb.Pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
