// Package chatlog provides the append-only, session-scoped record of
// conversation turns.
package chatlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Roles a turn may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one immutable entry in a session's history.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages turn persistence. Turns are append-only: there is no
// update or delete operation.
type Store struct {
	db *sql.DB

	// seq breaks ordering ties between turns written within the same
	// clock tick, so replay order always matches append order.
	seq atomic.Int64
}

// New creates a chat log store at the given database path.
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

// NewWithDB creates a chat log store using an existing database connection.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			seq        INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at, seq);
	`)
	return err
}

// Append records a new turn for a session and returns it.
func (s *Store) Append(ctx context.Context, sessionID, role, content string) (*Turn, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("turn id: %w", err)
	}

	turn := &Turn{
		ID:        id.String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at, seq) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Role, turn.Content,
		turn.CreatedAt.Format(time.RFC3339Nano), s.seq.Add(1))
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}

// Recent returns at most limit turns for a session, the most recent
// ones, in ascending timestamp order — oldest of the window first, the
// way the oracle replays them.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at, seq
			FROM messages
			WHERE session_id = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var createdAt string
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.Role, &turn.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			turn.CreatedAt = ts
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
