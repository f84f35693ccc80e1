package bookstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Search fields accepted by FindBooks.
const (
	ByTitle  = "title"
	ByAuthor = "author"
)

// FindBooks returns catalog entries whose title or author contains q,
// case-insensitively. by selects the search field.
func (s *Store) FindBooks(ctx context.Context, q, by string) ([]Book, error) {
	var column string
	switch by {
	case ByTitle:
		column = "title"
	case ByAuthor:
		column = "author"
	default:
		return nil, opErrorf("by parameter must be 'title' or 'author'")
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT isbn, title, author, stock, price FROM books
			WHERE %s LIKE '%%' || ? || '%%' COLLATE NOCASE
			ORDER BY title`, column), q)
	if err != nil {
		return nil, fmt.Errorf("find books: %w", err)
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ISBN, &b.Title, &b.Author, &b.Stock, &b.Price); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// RestockResult reports a completed restock.
type RestockResult struct {
	ISBN     string `json:"isbn"`
	Title    string `json:"title"`
	OldStock int    `json:"old_stock"`
	NewStock int    `json:"new_stock"`
	Added    int    `json:"added"`
}

// Restock increases a book's stock by qty.
func (s *Store) Restock(ctx context.Context, isbn string, qty int) (*RestockResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin restock: %w", err)
	}
	defer tx.Rollback()

	var title string
	var oldStock int
	err = tx.QueryRowContext(ctx, `SELECT title, stock FROM books WHERE isbn = ?`, isbn).Scan(&title, &oldStock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, opErrorf("Book %s not found", isbn)
	}
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE books SET stock = stock + ? WHERE isbn = ?`, qty, isbn); err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit restock: %w", err)
	}

	return &RestockResult{
		ISBN:     isbn,
		Title:    title,
		OldStock: oldStock,
		NewStock: oldStock + qty,
		Added:    qty,
	}, nil
}

// PriceResult reports a completed price change.
type PriceResult struct {
	ISBN     string  `json:"isbn"`
	Title    string  `json:"title"`
	OldPrice float64 `json:"old_price"`
	NewPrice float64 `json:"new_price"`
}

// UpdatePrice sets a book's price.
func (s *Store) UpdatePrice(ctx context.Context, isbn string, price float64) (*PriceResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reprice: %w", err)
	}
	defer tx.Rollback()

	var title string
	var oldPrice float64
	err = tx.QueryRowContext(ctx, `SELECT title, price FROM books WHERE isbn = ?`, isbn).Scan(&title, &oldPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, opErrorf("Book %s not found", isbn)
	}
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE books SET price = ? WHERE isbn = ?`, price, isbn); err != nil {
		return nil, fmt.Errorf("update price: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reprice: %w", err)
	}

	return &PriceResult{
		ISBN:     isbn,
		Title:    title,
		OldPrice: oldPrice,
		NewPrice: price,
	}, nil
}

// DefaultLowStockThreshold is the inventory_summary cutoff when the
// caller does not supply one.
const DefaultLowStockThreshold = 3

// InventorySummary returns books with stock at or below threshold,
// lowest stock first.
func (s *Store) InventorySummary(ctx context.Context, threshold int) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT isbn, title, author, stock, price FROM books
		 WHERE stock <= ?
		 ORDER BY stock ASC, title ASC`, threshold)
	if err != nil {
		return nil, fmt.Errorf("inventory summary: %w", err)
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ISBN, &b.Title, &b.Author, &b.Stock, &b.Price); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}
