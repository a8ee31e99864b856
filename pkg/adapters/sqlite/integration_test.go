package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	ctx := context.Background()

	a := &Adapter{}
	dsn := filepath.Join(t.TempDir(), "datacore.db")
	if err := a.Connect(ctx, adapters.Config{Type: "sqlite", DSN: dsn}); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { a.Close(ctx) })

	return a
}

// seedProducts - 10 продуктов p01..p10, у продукта i (i%3)+1 тегов
func seedProducts(t *testing.T, a *Adapter) {
	t.Helper()

	statements := []string{
		`CREATE TABLE products (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			deleted_at TIMESTAMP NULL
		)`,
		`CREATE TABLE product_tags (
			product_id INTEGER NOT NULL REFERENCES products(id),
			name TEXT NOT NULL
		)`,
	}
	for i := 1; i <= 10; i++ {
		statements = append(statements,
			fmt.Sprintf("INSERT INTO products (id, name, price) VALUES (%d, 'p%02d', %d)", i, i, i*10))
		for tag := 0; tag <= i%3; tag++ {
			statements = append(statements,
				fmt.Sprintf("INSERT INTO product_tags (product_id, name) VALUES (%d, 'tag%d')", i, tag))
		}
	}

	if err := a.BatchExecute(context.Background(), statements); err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}
}

func productQueries(t *testing.T) *skeleton.EntityQueries {
	t.Helper()

	q, err := skeleton.NewEntityQueries(skeleton.DialectSQLite, skeleton.EntityBindings{
		Table:        "products",
		SelectFields: "p.id AS product_id, p.name AS name, p.price AS price, t.name AS tag",
		SelectTables: "products p LEFT JOIN product_tags t ON t.product_id = p.id",
		SelectID:     "p.id",
		KeyColumn:    "p.id",
		KeyParam:     "product_id",
		Scope:        "p.deleted_at IS NULL",
	}, true)
	if err != nil {
		t.Fatalf("NewEntityQueries failed: %v", err)
	}
	return q
}

func findPage(t *testing.T, a *Adapter, q *skeleton.EntityQueries, where string, args []any, page, limit int) []adapters.Row {
	t.Helper()

	start, end, err := skeleton.Window(page, limit)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}

	stmt, err := q.Build(skeleton.OpFind, map[string]string{
		"DynamicWhereClause":      where,
		"DynamicOrderByField":     "name",
		"DynamicOrderByDirection": "ASC",
		"start":                   strconv.Itoa(start),
		"end":                     strconv.Itoa(end),
	}, args...)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	rows, err := a.Execute(context.Background(), stmt.SQL, stmt.Args...)
	if err != nil {
		t.Fatalf("Find failed: %v\n%s", err, stmt.SQL)
	}
	return rows
}

func distinctKeys(rows []adapters.Row) []int64 {
	var keys []int64
	seen := map[int64]bool{}
	for _, r := range rows {
		k := r["product_id"].(int64)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func TestIntegration_FindWindowsDistinctKeys(t *testing.T) {
	a := newTestAdapter(t)
	seedProducts(t, a)
	q := productQueries(t)

	rows := findPage(t, a, q, "1=1", nil, 0, 3)

	keys := distinctKeys(rows)
	if fmt.Sprint(keys) != "[1 2 3]" {
		t.Errorf("Expected keys [1 2 3], got %v", keys)
	}

	// 1 → 2 тега, 2 → 3 тега, 3 → 1 тег
	if len(rows) != 6 {
		t.Errorf("Expected 6 joined rows for 3 products, got %d", len(rows))
	}

	for _, r := range rows {
		if r["total"] != int64(10) {
			t.Fatalf("Expected total 10 on every row, got %v", r["total"])
		}
	}
}

func TestIntegration_FindLastPage(t *testing.T) {
	a := newTestAdapter(t)
	seedProducts(t, a)
	q := productQueries(t)

	rows := findPage(t, a, q, "1=1", nil, 3, 3)

	keys := distinctKeys(rows)
	if fmt.Sprint(keys) != "[10]" {
		t.Errorf("Expected only key 10 on the last page, got %v", keys)
	}
}

func TestIntegration_FindFilteredBound(t *testing.T) {
	a := newTestAdapter(t)
	seedProducts(t, a)
	q := productQueries(t)

	rows := findPage(t, a, q, "1=1 AND price >= ? AND tag = ?", []any{50, "tag2"}, 0, 10)

	// tag2 есть у продуктов с i%3 == 2: 2, 5, 8; из них price >= 50: 5, 8
	keys := distinctKeys(rows)
	if fmt.Sprint(keys) != "[5 8]" {
		t.Errorf("Expected keys [5 8], got %v", keys)
	}
	if len(rows) > 0 && rows[0]["total"] != int64(2) {
		t.Errorf("Expected total 2, got %v", rows[0]["total"])
	}
}

func TestIntegration_CreateReturning(t *testing.T) {
	a := newTestAdapter(t)
	seedProducts(t, a)
	q := productQueries(t)

	stmt, err := q.Build(skeleton.OpCreate, map[string]string{
		"Fields": skeleton.Columns([]string{"name", "price"}),
		"Values": skeleton.Placeholders(2),
	}, "p11", 110)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	rows, err := a.Execute(context.Background(), stmt.SQL, stmt.Args...)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != int64(11) {
		t.Errorf("Expected returned id 11, got %v", rows)
	}
}

func TestIntegration_SoftDeleteHidesFromFindAll(t *testing.T) {
	a := newTestAdapter(t)
	seedProducts(t, a)
	q := productQueries(t)
	ctx := context.Background()

	del, err := q.Build(skeleton.OpSoftDelete, map[string]string{"id": "?"}, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := a.Execute(ctx, del.SQL, del.Args...)
	if err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if res[0]["rows_affected"] != int64(1) {
		t.Errorf("Expected 1 affected row, got %v", res[0])
	}

	all, err := q.Build(skeleton.OpFindAll, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	rows, err := a.Execute(ctx, all.SQL)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}

	for _, r := range rows {
		if r["product_id"] == int64(1) {
			t.Fatal("Soft-deleted product returned by FindAll")
		}
		if r["total"] != int64(9) {
			t.Fatalf("Expected total 9, got %v", r["total"])
		}
	}
}

func TestIntegration_BatchRollback(t *testing.T) {
	a := newTestAdapter(t)
	seedProducts(t, a)
	ctx := context.Background()

	err := a.BatchExecute(ctx, []string{
		"DELETE FROM product_tags",
		"INSERT INTO missing_table VALUES (1)",
	})
	if err == nil {
		t.Fatal("Expected batch to fail")
	}

	rows, err := a.Execute(ctx, "SELECT COUNT(*) AS n FROM product_tags")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if rows[0]["n"] == int64(0) {
		t.Error("Failed batch must roll back the DELETE")
	}
}

func TestAdapter_NotConnected(t *testing.T) {
	a := &Adapter{}
	if _, err := a.Execute(context.Background(), "SELECT 1"); err != adapters.ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Errorf("Close on unconnected adapter must be a no-op, got %v", err)
	}
}
