package chatlog

import (
	"context"
	"database/sql"
	"fmt"
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

func TestAppendRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "s1", RoleUser, "restock Clean Code by 5"); err != nil {
		t.Fatalf("Append user: %v", err)
	}
	if _, err := store.Append(ctx, "s1", RoleAssistant, "Done. New stock: 15."); err != nil {
		t.Fatalf("Append assistant: %v", err)
	}

	turns, err := store.Recent(ctx, "s1", 20)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Errorf("roles = %q, %q; want user then assistant", turns[0].Role, turns[1].Role)
	}
}

func TestRecentOrderingAndLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := store.Append(ctx, "s1", role, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	turns, err := store.Recent(ctx, "s1", 20)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 20 {
		t.Fatalf("got %d turns, want 20", len(turns))
	}

	// The window is the most recent 20, replayed oldest first.
	if turns[0].Content != "turn 10" {
		t.Errorf("first = %q, want turn 10", turns[0].Content)
	}
	if turns[19].Content != "turn 29" {
		t.Errorf("last = %q, want turn 29", turns[19].Content)
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].CreatedAt.Before(turns[i-1].CreatedAt) {
			t.Fatalf("timestamps out of order at %d", i)
		}
	}
}

func TestRecentSessionIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Append(ctx, "s1", RoleUser, "hello from s1")
	store.Append(ctx, "s2", RoleUser, "hello from s2")

	turns, err := store.Recent(ctx, "s1", 20)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if turns[0].SessionID != "s1" {
		t.Errorf("session = %q, want s1", turns[0].SessionID)
	}
}

func TestRecentIdempotentRead(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Append(ctx, "s1", RoleUser, "one")
	store.Append(ctx, "s1", RoleAssistant, "two")

	first, err := store.Recent(ctx, "s1", 20)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	second, err := store.Recent(ctx, "s1", 20)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Content != second[i].Content {
			t.Errorf("turn %d differs between reads", i)
		}
	}
}

func TestRecentEmptySession(t *testing.T) {
	store := openTestStore(t)

	turns, err := store.Recent(context.Background(), "nope", 20)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("got %d turns, want 0", len(turns))
	}
}

func TestRecentZeroLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Append(ctx, "s1", RoleUser, "hello")

	turns, err := store.Recent(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if turns != nil {
		t.Errorf("expected nil for zero limit, got %v", turns)
	}
}
