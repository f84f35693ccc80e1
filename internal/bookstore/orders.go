package bookstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateOrder creates an order for a customer and decrements stock for
// every line, all inside one transaction. Any rejection (unknown
// customer, unknown book, not enough stock) rolls back the whole order.
//
// The stock check-and-decrement is a single conditional UPDATE, so two
// concurrent orders for the last copy of a book cannot both succeed.
func (s *Store) CreateOrder(ctx context.Context, customerID int64, items []OrderLine) (int64, error) {
	if len(items) == 0 {
		return 0, opErrorf("order must contain at least one item")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin order: %w", err)
	}
	defer tx.Rollback()

	var customerName string
	err = tx.QueryRowContext(ctx, `SELECT name FROM customers WHERE id = ?`, customerID).Scan(&customerName)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, opErrorf("Customer %d not found", customerID)
	}
	if err != nil {
		return 0, fmt.Errorf("load customer: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (customer_id, status, created_at) VALUES (?, 'pending', ?)`,
		customerID, now())
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("order id: %w", err)
	}

	for _, item := range items {
		if item.Qty <= 0 {
			return 0, opErrorf("quantity for %s must be positive", item.ISBN)
		}

		var title string
		var price float64
		err = tx.QueryRowContext(ctx, `SELECT title, price FROM books WHERE isbn = ?`, item.ISBN).Scan(&title, &price)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, opErrorf("Book %s not found", item.ISBN)
		}
		if err != nil {
			return 0, fmt.Errorf("load book: %w", err)
		}

		upd, err := tx.ExecContext(ctx,
			`UPDATE books SET stock = stock - ? WHERE isbn = ? AND stock >= ?`,
			item.Qty, item.ISBN, item.Qty)
		if err != nil {
			return 0, fmt.Errorf("decrement stock: %w", err)
		}
		affected, err := upd.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("decrement stock: %w", err)
		}
		if affected == 0 {
			var available int
			_ = tx.QueryRowContext(ctx, `SELECT stock FROM books WHERE isbn = ?`, item.ISBN).Scan(&available)
			return 0, opErrorf("Not enough stock for %s. Available: %d, Requested: %d", title, available, item.Qty)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, isbn, qty, price) VALUES (?, ?, ?, ?)`,
			orderID, item.ISBN, item.Qty, price); err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit order: %w", err)
	}
	return orderID, nil
}

// OrderItemDetail is one line of an existing order.
type OrderItemDetail struct {
	ISBN  string  `json:"isbn"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// OrderDetail is the full status view of an order.
type OrderDetail struct {
	OrderID    int64             `json:"order_id"`
	CustomerID int64             `json:"customer_id"`
	Status     string            `json:"status"`
	CreatedAt  string            `json:"created_at"`
	Items      []OrderItemDetail `json:"items"`
}

// OrderStatus returns an order with its items, or nil when no such
// order exists. Absence is not an error — the agent reports it as a
// not-found answer.
func (s *Store) OrderStatus(ctx context.Context, orderID int64) (*OrderDetail, error) {
	var detail OrderDetail
	err := s.db.QueryRowContext(ctx,
		`SELECT id, customer_id, status, created_at FROM orders WHERE id = ?`, orderID).
		Scan(&detail.OrderID, &detail.CustomerID, &detail.Status, &detail.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT isbn, qty, price FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItemDetail
		if err := rows.Scan(&item.ISBN, &item.Qty, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		detail.Items = append(detail.Items, item)
	}
	return &detail, rows.Err()
}
