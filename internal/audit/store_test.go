package audit

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewWithDB(db)
	if err != nil {
		t.Fatalf("NewWithDB: %v", err)
	}
	return store
}

func TestRecordAndBySession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "s1", "search_catalog", `{"q":"Clean Code","by":"title"}`, `[{"isbn":"9780132350884"}]`, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, "s1", "restock_book", `{"isbn":"9780132350884","qty":5}`, `{"new_stock":15}`, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	invs, err := store.BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(invs) != 2 {
		t.Fatalf("got %d invocations, want 2", len(invs))
	}
	if invs[0].ToolName != "search_catalog" || invs[1].ToolName != "restock_book" {
		t.Errorf("order = %q, %q", invs[0].ToolName, invs[1].ToolName)
	}
}

func TestRecordFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Record(ctx, "s1", "place_order", `{"customer_id":1}`, "",
		"Not enough stock for Clean Code. Available: 2, Requested: 5")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	invs, err := store.BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("got %d invocations, want 1", len(invs))
	}
	if invs[0].Error == "" {
		t.Error("expected error message on failed invocation")
	}
	if invs[0].Result != "" {
		t.Errorf("result = %q, want empty on failure", invs[0].Result)
	}
}

func TestBySessionIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Record(ctx, "s1", "inventory_summary", `{}`, `[]`, "")
	store.Record(ctx, "s2", "order_status", `{"order_id":1}`, `{}`, "")

	invs, err := store.BySession(ctx, "s2")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(invs) != 1 || invs[0].ToolName != "order_status" {
		t.Errorf("unexpected invocations: %+v", invs)
	}
}
