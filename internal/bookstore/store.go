// Package bookstore provides the catalog and order store the desk
// agent's capabilities execute against.
package bookstore

import (
	"database/sql"
	"fmt"
	"time"
)

// Book is one catalog entry. The ISBN is the canonical identifier;
// every mutating operation keys on it.
type Book struct {
	ISBN   string  `json:"isbn"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Stock  int     `json:"stock"`
	Price  float64 `json:"price"`
}

// Customer is a known buyer.
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OrderLine is one requested item in a new order.
type OrderLine struct {
	ISBN string `json:"isbn"`
	Qty  int    `json:"qty"`
}

// Store manages catalog and order persistence.
type Store struct {
	db *sql.DB
}

// New creates a bookstore store at the given database path.
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

// NewWithDB creates a bookstore store using an existing database
// connection, so catalog, chat log, and audit trail can share one file.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// DB exposes the underlying connection for stores sharing the database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			isbn   TEXT PRIMARY KEY,
			title  TEXT NOT NULL,
			author TEXT NOT NULL,
			price  REAL NOT NULL,
			stock  INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS customers (
			id    INTEGER PRIMARY KEY,
			name  TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS orders (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			status      TEXT NOT NULL DEFAULT 'pending',
			created_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS order_items (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id INTEGER NOT NULL REFERENCES orders(id),
			isbn     TEXT NOT NULL REFERENCES books(isbn),
			qty      INTEGER NOT NULL,
			price    REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
		CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
	`)
	return err
}

// now returns the current UTC time formatted for storage.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
