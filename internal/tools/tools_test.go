package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/shelfdesk/shelfdesk/internal/audit"
	"github.com/shelfdesk/shelfdesk/internal/bookstore"
)

func openTestRegistry(t *testing.T) (*Registry, *bookstore.Store, *audit.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// A pooled second connection would see a different in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := bookstore.NewWithDB(db)
	if err != nil {
		t.Fatalf("bookstore.NewWithDB: %v", err)
	}
	if err := store.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	auditStore, err := audit.NewWithDB(db)
	if err != nil {
		t.Fatalf("audit.NewWithDB: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := NewBookstoreRegistry(logger, store, auditStore)
	if err != nil {
		t.Fatalf("NewBookstoreRegistry: %v", err)
	}
	return registry, store, auditStore
}

func TestRegistryNames(t *testing.T) {
	registry, _, _ := openTestRegistry(t)

	want := []string{
		"inventory_summary", "order_status", "place_order",
		"restock_book", "search_catalog", "update_price",
	}
	got := registry.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExecuteSearchCatalog(t *testing.T) {
	registry, _, auditStore := openTestRegistry(t)
	ctx := WithSession(context.Background(), "s1")

	out, err := registry.Execute(ctx, "search_catalog", `{"q": "clean code"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "9780132350884") {
		t.Errorf("result missing ISBN: %s", out)
	}

	invs, err := auditStore.BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("got %d audit records, want 1", len(invs))
	}
	if invs[0].ToolName != "search_catalog" || invs[0].Error != "" {
		t.Errorf("unexpected audit record: %+v", invs[0])
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	registry, _, _ := openTestRegistry(t)

	_, err := registry.Execute(context.Background(), "teleport_book", `{}`)
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want UnknownToolError", err)
	}
	if !IsRecoverable(err) {
		t.Error("unknown tool should be recoverable")
	}
}

func TestExecuteValidationFailureSkipsDispatchAndAudit(t *testing.T) {
	registry, store, auditStore := openTestRegistry(t)
	ctx := WithSession(context.Background(), "s1")

	// qty missing from the order line.
	_, err := registry.Execute(ctx, "place_order",
		`{"customer_id": 1, "items": [{"isbn": "9780132350884"}]}`)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if !strings.Contains(err.Error(), "qty") {
		t.Errorf("error should name the missing field: %v", err)
	}

	// No stock was touched.
	books, err := store.FindBooks(ctx, "clean code", bookstore.ByTitle)
	if err != nil {
		t.Fatalf("FindBooks: %v", err)
	}
	if books[0].Stock != 10 {
		t.Errorf("stock = %d, want 10 (unchanged)", books[0].Stock)
	}

	// And nothing was audited.
	invs, err := auditStore.BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(invs) != 0 {
		t.Errorf("got %d audit records, want 0", len(invs))
	}
}

func TestExecuteMalformedArguments(t *testing.T) {
	registry, _, _ := openTestRegistry(t)

	_, err := registry.Execute(context.Background(), "search_catalog", `[1, 2]`)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestExecuteDomainFailureIsAudited(t *testing.T) {
	registry, _, auditStore := openTestRegistry(t)
	ctx := WithSession(context.Background(), "s1")

	// The C Programming Language has 2 copies in the seed data.
	_, err := registry.Execute(ctx, "place_order",
		`{"customer_id": 1, "items": [{"isbn": "9780131101633", "qty": 5}]}`)
	var execution *ExecutionError
	if !errors.As(err, &execution) {
		t.Fatalf("got %v, want ExecutionError", err)
	}
	want := "Not enough stock for The C Programming Language. Available: 2, Requested: 5"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}

	invs, err := auditStore.BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("got %d audit records, want 1", len(invs))
	}
	if invs[0].Error != want {
		t.Errorf("audit error = %q, want %q", invs[0].Error, want)
	}
	if invs[0].Result != "" {
		t.Errorf("audit result should be empty on failure, got %q", invs[0].Result)
	}
}

func TestExecutePlaceOrder(t *testing.T) {
	registry, store, _ := openTestRegistry(t)
	ctx := WithSession(context.Background(), "s1")

	out, err := registry.Execute(ctx, "place_order",
		`{"customer_id": 2, "items": [{"isbn": "9780132350884", "qty": 3}]}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var result struct {
		OrderID int64  `json:"order_id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.OrderID == 0 {
		t.Error("order_id missing from result")
	}
	if !strings.Contains(result.Message, "customer 2") {
		t.Errorf("unexpected message: %q", result.Message)
	}

	books, err := store.FindBooks(ctx, "clean code", bookstore.ByTitle)
	if err != nil {
		t.Fatalf("FindBooks: %v", err)
	}
	if books[0].Stock != 7 {
		t.Errorf("stock = %d, want 7", books[0].Stock)
	}
}

func TestExecuteRestock(t *testing.T) {
	registry, _, _ := openTestRegistry(t)
	ctx := WithSession(context.Background(), "s1")

	out, err := registry.Execute(ctx, "restock_book", `{"isbn": "9780132350884", "qty": 5}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var result struct {
		OldStock int `json:"old_stock"`
		NewStock int `json:"new_stock"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.OldStock != 10 || result.NewStock != 15 {
		t.Errorf("stock %d -> %d, want 10 -> 15", result.OldStock, result.NewStock)
	}
}

func TestExecuteOrderStatusNotFound(t *testing.T) {
	registry, _, _ := openTestRegistry(t)

	out, err := registry.Execute(context.Background(), "order_status", `{"order_id": 99}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Order 99 not found") {
		t.Errorf("unexpected result: %s", out)
	}
}

func TestExecuteInventorySummaryDefaultThreshold(t *testing.T) {
	registry, _, _ := openTestRegistry(t)

	out, err := registry.Execute(context.Background(), "inventory_summary", `{}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var result struct {
		Threshold int `json:"threshold"`
		Books     []struct {
			bookstore.Book
			LowStock bool `json:"low_stock"`
		} `json:"books"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Threshold != 3 {
		t.Errorf("threshold = %d, want 3", result.Threshold)
	}
	if len(result.Books) != 2 {
		t.Fatalf("got %d low-stock books, want 2", len(result.Books))
	}
	if result.Books[0].Stock > result.Books[1].Stock {
		t.Error("books not ordered by ascending stock")
	}
	for _, b := range result.Books {
		if !b.LowStock {
			t.Errorf("%s missing low_stock marker", b.ISBN)
		}
	}
}

func TestDefinitionsShape(t *testing.T) {
	registry, _, _ := openTestRegistry(t)

	defs := registry.Definitions()
	if len(defs) != 6 {
		t.Fatalf("got %d definitions, want 6", len(defs))
	}
	for _, def := range defs {
		if def["type"] != "function" {
			t.Errorf("definition type = %v, want function", def["type"])
		}
		fn, ok := def["function"].(map[string]any)
		if !ok {
			t.Fatalf("definition missing function block: %v", def)
		}
		if fn["name"] == "" || fn["description"] == "" || fn["parameters"] == nil {
			t.Errorf("incomplete definition: %v", fn)
		}
	}
}
