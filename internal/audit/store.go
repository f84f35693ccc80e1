// Package audit provides the append-only trail of capability
// invocations. The decision loop only writes here; reads exist for
// observability endpoints, never for the loop's own decisions.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Invocation is one dispatched capability call. Error is empty for
// successes and carries the domain rejection message otherwise;
// argument-validation failures are never recorded because they are
// rejected before dispatch.
type Invocation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	ToolName  string    `json:"tool_name"`
	Arguments string    `json:"arguments"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists invocation records.
type Store struct {
	db *sql.DB
}

// New creates an audit store at the given database path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewWithDB creates an audit store using an existing database connection.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_calls (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			tool_name  TEXT NOT NULL,
			arguments  TEXT NOT NULL,
			result     TEXT,
			error      TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool_name);
	`)
	return err
}

// Record appends one invocation to the trail.
func (s *Store) Record(ctx context.Context, sessionID, toolName, arguments, result, errMsg string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("invocation id: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, session_id, tool_name, arguments, result, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), sessionID, toolName, arguments, result, errMsg,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	return nil
}

// BySession returns a session's invocations in append order. Used by
// the observability endpoint, not by the loop.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]Invocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, tool_name, arguments, result, error, created_at
		 FROM tool_calls
		 WHERE session_id = ?
		 ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("invocations by session: %w", err)
	}
	defer rows.Close()

	var invs []Invocation
	for rows.Next() {
		var inv Invocation
		var createdAt string
		if err := rows.Scan(&inv.ID, &inv.SessionID, &inv.ToolName, &inv.Arguments, &inv.Result, &inv.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			inv.CreatedAt = ts
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}
