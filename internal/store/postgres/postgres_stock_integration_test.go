package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"bengkelinaja/internal/domain"
	"bengkelinaja/internal/store"
)

func TestDeleteJobsheetRestoresStock(t *testing.T) {
	databaseURL := os.Getenv("BENGKELINAJA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BENGKELINAJA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-stock-it-%d", stamp)
	customerID := fmt.Sprintf("cus-stock-it-%d", stamp)
	vehicleID := fmt.Sprintf("veh-stock-it-%d", stamp)
	jobsheetID := fmt.Sprintf("js-stock-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM jobsheet_items WHERE jobsheet_id = $1`, jobsheetID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM jobsheets WHERE id = $1`, jobsheetID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = $1`, vehicleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, stock, cost_cents, sale_cents, created_at)
		VALUES ($1, $1, 'Kampas Rem IT', 10, 250000, 420000, now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, created_at)
		VALUES ($1, 'Pelanggan IT', now())
	`, customerID); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, customer_id, plate, brand, model, year, created_at)
		VALUES ($1, $2, 'B 1234 IT', 'Toyota', 'Avanza', 2019, now())
	`, vehicleID, customerID); err != nil {
		t.Fatalf("insert vehicle: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO jobsheets (id, customer_id, vehicle_id, state, notes, total_amount_cents, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', '', 0, now(), now())
	`, jobsheetID, customerID, vehicleID); err != nil {
		t.Fatalf("insert jobsheet: %v", err)
	}

	if _, err := s.AddJobsheetItem(ctx, domain.JobsheetItem{
		JobsheetID: jobsheetID,
		ProductID:  productID,
		Qty:        3,
	}, false); err != nil {
		t.Fatalf("add item: %v", err)
	}

	var stock int
	if err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 7 {
		t.Fatalf("expected stock 7 after add, got %d", stock)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT total_amount_cents FROM jobsheets WHERE id = $1`, jobsheetID).Scan(&total); err != nil {
		t.Fatalf("query total: %v", err)
	}
	if total != 3*420000 {
		t.Fatalf("expected total %d after add, got %d", 3*420000, total)
	}

	if _, err := s.AddJobsheetItem(ctx, domain.JobsheetItem{
		JobsheetID: jobsheetID,
		ProductID:  productID,
		Qty:        8,
	}, false); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for qty 8 with stock 7, got %v", err)
	}

	if err := s.DeleteJobsheet(ctx, jobsheetID); err != nil {
		t.Fatalf("delete jobsheet: %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock after delete: %v", err)
	}
	if stock != 10 {
		t.Fatalf("expected stock 10 after jobsheet delete restock, got %d", stock)
	}

	if err := s.DeleteJobsheet(ctx, jobsheetID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
