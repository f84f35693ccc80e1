package bookstore

import (
	"context"
	"fmt"
)

// seedBooks is the development catalog.
var seedBooks = []Book{
	{ISBN: "9780132350884", Title: "Clean Code", Author: "Robert C. Martin", Stock: 10, Price: 35.99},
	{ISBN: "9780201616224", Title: "The Pragmatic Programmer", Author: "Andrew Hunt", Stock: 5, Price: 42.99},
	{ISBN: "9781491954248", Title: "Designing Data-Intensive Applications", Author: "Martin Kleppmann", Stock: 8, Price: 45.99},
	{ISBN: "9780134757599", Title: "The Mythical Man-Month", Author: "Frederick Brooks", Stock: 3, Price: 29.99},
	{ISBN: "9780321125217", Title: "Domain-Driven Design", Author: "Eric Evans", Stock: 4, Price: 55.99},
	{ISBN: "9780596007126", Title: "Head First Design Patterns", Author: "Eric Freeman", Stock: 6, Price: 49.99},
	{ISBN: "9780131101633", Title: "The C Programming Language", Author: "Brian Kernighan", Stock: 2, Price: 39.99},
	{ISBN: "9780131177055", Title: "Refactoring", Author: "Martin Fowler", Stock: 7, Price: 37.99},
	{ISBN: "9780321146533", Title: "Test-Driven Development", Author: "Kent Beck", Stock: 4, Price: 32.99},
	{ISBN: "9780137081073", Title: "Effective Java", Author: "Joshua Bloch", Stock: 5, Price: 48.99},
}

var seedCustomers = []Customer{
	{ID: 1, Name: "Alice Johnson", Email: "alice@example.com"},
	{ID: 2, Name: "Bob Smith", Email: "bob@example.com"},
	{ID: 3, Name: "Charlie Brown", Email: "charlie@example.com"},
	{ID: 4, Name: "Diana Prince", Email: "diana@example.com"},
	{ID: 5, Name: "Evan Wright", Email: "evan@example.com"},
	{ID: 6, Name: "Fiona Green", Email: "fiona@example.com"},
}

type seedOrder struct {
	id         int64
	customerID int64
	status     string
}

var seedOrders = []seedOrder{
	{1, 1, "completed"},
	{2, 2, "processing"},
	{3, 3, "pending"},
	{4, 1, "shipped"},
}

type seedOrderItem struct {
	orderID int64
	isbn    string
	qty     int
	price   float64
}

var seedOrderItems = []seedOrderItem{
	{1, "9780132350884", 1, 35.99},
	{1, "9780131101633", 1, 39.99},
	{2, "9780201616224", 1, 42.99},
	{3, "9780321125217", 1, 55.99},
	{3, "9780131177055", 1, 37.99},
	{3, "9780596007126", 1, 49.99},
	{4, "9780132350884", 2, 35.99},
	{4, "9780137081073", 1, 48.99},
}

// Seed drops and recreates the bookstore tables with the development
// fixture: 10 books, 6 customers, 4 orders, 8 order items.
func (s *Store) Seed(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS order_items;
		DROP TABLE IF EXISTS orders;
		DROP TABLE IF EXISTS customers;
		DROP TABLE IF EXISTS books;
	`); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	if err := s.migrate(); err != nil {
		return fmt.Errorf("recreate tables: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, b := range seedBooks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO books (isbn, title, author, price, stock) VALUES (?, ?, ?, ?, ?)`,
			b.ISBN, b.Title, b.Author, b.Price, b.Stock); err != nil {
			return fmt.Errorf("seed book %s: %w", b.ISBN, err)
		}
	}

	for _, c := range seedCustomers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO customers (id, name, email) VALUES (?, ?, ?)`,
			c.ID, c.Name, c.Email); err != nil {
			return fmt.Errorf("seed customer %d: %w", c.ID, err)
		}
	}

	for _, o := range seedOrders {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, customer_id, status, created_at) VALUES (?, ?, ?, ?)`,
			o.id, o.customerID, o.status, now()); err != nil {
			return fmt.Errorf("seed order %d: %w", o.id, err)
		}
	}

	for _, item := range seedOrderItems {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, isbn, qty, price) VALUES (?, ?, ?, ?)`,
			item.orderID, item.isbn, item.qty, item.price); err != nil {
			return fmt.Errorf("seed order item: %w", err)
		}
	}

	return tx.Commit()
}
