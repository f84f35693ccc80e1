package bookstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// A pooled second connection would see a different in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewWithDB(db)
	if err != nil {
		t.Fatalf("NewWithDB: %v", err)
	}
	if err := store.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return store
}

func TestFindBooksByTitle(t *testing.T) {
	store := openTestStore(t)

	books, err := store.FindBooks(context.Background(), "clean code", ByTitle)
	if err != nil {
		t.Fatalf("FindBooks: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("got %d books, want 1", len(books))
	}
	if books[0].ISBN != "9780132350884" {
		t.Errorf("ISBN = %q, want 9780132350884", books[0].ISBN)
	}
	if books[0].Stock != 10 {
		t.Errorf("Stock = %d, want 10", books[0].Stock)
	}
}

func TestFindBooksByAuthor(t *testing.T) {
	store := openTestStore(t)

	books, err := store.FindBooks(context.Background(), "fowler", ByAuthor)
	if err != nil {
		t.Fatalf("FindBooks: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Refactoring" {
		t.Errorf("unexpected result: %+v", books)
	}
}

func TestFindBooksInvalidField(t *testing.T) {
	store := openTestStore(t)

	_, err := store.FindBooks(context.Background(), "x", "publisher")
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OpError, got %v", err)
	}
}

func TestFindBooksNoMatch(t *testing.T) {
	store := openTestStore(t)

	books, err := store.FindBooks(context.Background(), "nonexistent", ByTitle)
	if err != nil {
		t.Fatalf("FindBooks: %v", err)
	}
	if len(books) != 0 {
		t.Errorf("got %d books, want 0", len(books))
	}
}

func TestRestock(t *testing.T) {
	store := openTestStore(t)

	res, err := store.Restock(context.Background(), "9780132350884", 5)
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if res.OldStock != 10 || res.NewStock != 15 || res.Added != 5 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Title != "Clean Code" {
		t.Errorf("Title = %q", res.Title)
	}

	books, _ := store.FindBooks(context.Background(), "Clean Code", ByTitle)
	if books[0].Stock != 15 {
		t.Errorf("persisted stock = %d, want 15", books[0].Stock)
	}
}

func TestRestockUnknownBook(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Restock(context.Background(), "0000000000000", 5)
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OpError, got %v", err)
	}
	if !strings.Contains(opErr.Msg, "not found") {
		t.Errorf("message = %q", opErr.Msg)
	}
}

func TestUpdatePrice(t *testing.T) {
	store := openTestStore(t)

	res, err := store.UpdatePrice(context.Background(), "9780131177055", 29.99)
	if err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	if res.OldPrice != 37.99 || res.NewPrice != 29.99 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestCreateOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	orderID, err := store.CreateOrder(ctx, 1, []OrderLine{
		{ISBN: "9780132350884", Qty: 2},
		{ISBN: "9780201616224", Qty: 1},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if orderID == 0 {
		t.Fatal("expected non-zero order id")
	}

	detail, err := store.OrderStatus(ctx, orderID)
	if err != nil {
		t.Fatalf("OrderStatus: %v", err)
	}
	if detail == nil {
		t.Fatal("order not found after create")
	}
	if detail.CustomerID != 1 || detail.Status != "pending" {
		t.Errorf("unexpected order: %+v", detail)
	}
	if len(detail.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(detail.Items))
	}

	// Stock decremented for both lines.
	books, _ := store.FindBooks(ctx, "Clean Code", ByTitle)
	if books[0].Stock != 8 {
		t.Errorf("Clean Code stock = %d, want 8", books[0].Stock)
	}
	books, _ = store.FindBooks(ctx, "Pragmatic", ByTitle)
	if books[0].Stock != 4 {
		t.Errorf("Pragmatic Programmer stock = %d, want 4", books[0].Stock)
	}
}

func TestOrderStatusDefaultsToPending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// A row written without an explicit status takes the schema default.
	res, err := store.DB().ExecContext(ctx,
		`INSERT INTO orders (customer_id, created_at) VALUES (1, '2026-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("order id: %v", err)
	}

	detail, err := store.OrderStatus(ctx, orderID)
	if err != nil {
		t.Fatalf("OrderStatus: %v", err)
	}
	if detail == nil {
		t.Fatal("order not found")
	}
	if detail.Status != "pending" {
		t.Errorf("status = %q, want pending", detail.Status)
	}
}

func TestCreateOrderUnknownCustomer(t *testing.T) {
	store := openTestStore(t)

	_, err := store.CreateOrder(context.Background(), 99, []OrderLine{{ISBN: "9780132350884", Qty: 1}})
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OpError, got %v", err)
	}
	if opErr.Msg != "Customer 99 not found" {
		t.Errorf("message = %q", opErr.Msg)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// The C Programming Language is seeded with stock=2.
	_, err := store.CreateOrder(ctx, 1, []OrderLine{{ISBN: "9780131101633", Qty: 5}})
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OpError, got %v", err)
	}
	if !strings.Contains(opErr.Msg, "Available: 2") || !strings.Contains(opErr.Msg, "Requested: 5") {
		t.Errorf("message = %q, want available/requested amounts", opErr.Msg)
	}

	// No stock mutation, no order or order-item rows persisted.
	books, _ := store.FindBooks(ctx, "C Programming", ByTitle)
	if books[0].Stock != 2 {
		t.Errorf("stock = %d, want 2 (unchanged)", books[0].Stock)
	}
	var orders int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&orders); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orders != 4 {
		t.Errorf("orders = %d, want 4 (seed only)", orders)
	}
}

func TestCreateOrderRollsBackEarlierLines(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// First line would succeed alone; second line fails and must undo it.
	_, err := store.CreateOrder(ctx, 1, []OrderLine{
		{ISBN: "9780132350884", Qty: 1},
		{ISBN: "9780131101633", Qty: 99},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	books, _ := store.FindBooks(ctx, "Clean Code", ByTitle)
	if books[0].Stock != 10 {
		t.Errorf("Clean Code stock = %d, want 10 (rolled back)", books[0].Stock)
	}
}

func TestCreateOrderNoOversell(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Reduce a book to a single copy, then race two orders for it.
	if _, err := store.DB().Exec(`UPDATE books SET stock = 1 WHERE isbn = '9780321146533'`); err != nil {
		t.Fatalf("setup: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.CreateOrder(ctx, 1, []OrderLine{{ISBN: "9780321146533", Qty: 1}})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("%d orders succeeded for 1 copy, want exactly 1", succeeded)
	}

	var stock int
	if err := store.DB().QueryRow(`SELECT stock FROM books WHERE isbn = '9780321146533'`).Scan(&stock); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if stock != 0 {
		t.Errorf("stock = %d, want 0", stock)
	}
}

func TestOrderStatusNotFound(t *testing.T) {
	store := openTestStore(t)

	detail, err := store.OrderStatus(context.Background(), 999)
	if err != nil {
		t.Fatalf("OrderStatus: %v", err)
	}
	if detail != nil {
		t.Errorf("expected nil for missing order, got %+v", detail)
	}
}

func TestInventorySummary(t *testing.T) {
	store := openTestStore(t)

	books, err := store.InventorySummary(context.Background(), DefaultLowStockThreshold)
	if err != nil {
		t.Fatalf("InventorySummary: %v", err)
	}

	// Seed has stock=2 (The C Programming Language) and stock=3 (Mythical Man-Month).
	if len(books) != 2 {
		t.Fatalf("got %d low-stock books, want 2", len(books))
	}
	if books[0].Stock > books[1].Stock {
		t.Error("expected ascending stock order")
	}
	if books[0].Title != "The C Programming Language" {
		t.Errorf("first = %q", books[0].Title)
	}
}

func TestSeedCounts(t *testing.T) {
	store := openTestStore(t)

	counts := map[string]int{"books": 10, "customers": 6, "orders": 4, "order_items": 8}
	for table, want := range counts {
		var got int
		if err := store.DB().QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&got); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if got != want {
			t.Errorf("%s = %d, want %d", table, got, want)
		}
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	store := openTestStore(t)

	// Re-seeding resets mutations.
	if _, err := store.Restock(context.Background(), "9780132350884", 100); err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if err := store.Seed(context.Background()); err != nil {
		t.Fatalf("re-Seed: %v", err)
	}

	books, _ := store.FindBooks(context.Background(), "Clean Code", ByTitle)
	if books[0].Stock != 10 {
		t.Errorf("stock after re-seed = %d, want 10", books[0].Stock)
	}
}
